// Command pgcu initialises, inspects and runs PGCU fusion units.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(newLogger(os.Stderr, logLevel()))
	cobra.CheckErr(NewCLI().ExecuteContext(context.Background()))
}
