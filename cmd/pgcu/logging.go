package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// logLevel reads PGCU_DEBUG: any true value enables debug logging.
func logLevel() slog.Level {
	if debug, err := strconv.ParseBool(os.Getenv("PGCU_DEBUG")); err == nil && debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}
