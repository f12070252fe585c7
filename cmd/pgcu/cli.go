package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/openfluke/pgcu/gpu"
	"github.com/openfluke/pgcu/nn"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pgcu",
		Short: "Probability-based global cross-modal upsampling for pansharpening",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}

	defaults := nn.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.Int("channel", defaults.Channel, "Number of spectral bands")
	flags.Int("veclen", defaults.VecLen, "Feature vector length, divisible by --channel")
	flags.Int("blocks", defaults.NumberBlocks, "Downsampling blocks in the guide pyramid")
	flags.String("strategy", nn.StrategyIndex.String(), "Reshape strategy: index or rearrange")
	flags.Int("workers", 0, "Concurrent coupling tasks (0 = GOMAXPROCS)")

	cobra.EnableCommandSorting = false

	initCmd := &cobra.Command{
		Use:   "init OUTPUT",
		Short: "Write freshly initialised weights as safetensors",
		Args:  cobra.ExactArgs(1),
		RunE:  InitHandler,
	}
	initCmd.Flags().Int64("seed", 1, "Random seed")
	initCmd.Flags().String("dtype", "F32", "Storage dtype: F32, F16 or BF16")
	initCmd.Flags().Bool("identity", false, "Write deterministic identity-like weights instead of random ones")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the components and parameter counts of a unit",
		Args:  cobra.NoArgs,
		RunE:  InfoHandler,
	}
	infoCmd.Flags().Int("height", 0, "Spectral image height used to report shapes")
	infoCmd.Flags().Int("width", 0, "Spectral image width used to report shapes")
	infoCmd.Flags().Bool("json", false, "Print the blueprint as JSON")

	fuseCmd := &cobra.Command{
		Use:   "fuse",
		Short: "Fuse a panchromatic and a multispectral image",
		Args:  cobra.NoArgs,
		RunE:  FuseHandler,
	}
	fuseCmd.Flags().String("weights", "", "Safetensors checkpoint")
	fuseCmd.Flags().String("pan", "", "Panchromatic guide image (PNG or TIFF), 4x the multispectral size")
	fuseCmd.Flags().String("ms", "", "Multispectral image (PNG or TIFF)")
	fuseCmd.Flags().StringP("output", "o", "fused.png", "Output PNG")
	fuseCmd.Flags().Bool("gpu", false, "Run the probability softmax on WebGPU")
	fuseCmd.Flags().Bool("entropy", false, "Log the mean information entropy of the band distributions")
	for _, name := range []string{"weights", "pan", "ms"} {
		_ = fuseCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(initCmd, infoCmd, fuseCmd)
	return rootCmd
}

// configFromFlags builds a unit configuration from the persistent flags.
func configFromFlags(cmd *cobra.Command) (nn.Config, error) {
	cfg := nn.DefaultConfig()
	var err error
	flags := cmd.Flags()
	if cfg.Channel, err = flags.GetInt("channel"); err != nil {
		return cfg, err
	}
	if cfg.VecLen, err = flags.GetInt("veclen"); err != nil {
		return cfg, err
	}
	if cfg.NumberBlocks, err = flags.GetInt("blocks"); err != nil {
		return cfg, err
	}
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return cfg, err
	}
	strategy, err := flags.GetString("strategy")
	if err != nil {
		return cfg, err
	}
	if cfg.Strategy, err = nn.ParseStrategy(strategy); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func InitHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	seed, _ := cmd.Flags().GetInt64("seed")
	dtype, _ := cmd.Flags().GetString("dtype")
	identity, _ := cmd.Flags().GetBool("identity")

	var params *nn.Params
	if identity {
		params = nn.IdentityParams(cfg)
	} else {
		params = nn.InitParams(cfg, rand.New(rand.NewSource(seed)))
	}

	if err := nn.SaveParams(args[0], params, strings.ToUpper(dtype)); err != nil {
		return err
	}
	slog.Info("wrote weights", "path", args[0], "parameters", params.NumParams(), "dtype", strings.ToUpper(dtype))
	return nil
}

func InfoHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	height, _ := cmd.Flags().GetInt("height")
	width, _ := cmd.Flags().GetInt("width")
	asJSON, _ := cmd.Flags().GetBool("json")

	bp, err := nn.ExtractBlueprint(cfg, height, width)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(bp)
	}
	prettyPrintBlueprint(out, bp)
	return nil
}

func prettyPrintBlueprint(out io.Writer, bp nn.Blueprint) {
	var data [][]string
	var walk func(indent string, comps []nn.ComponentTelemetry)
	walk = func(indent string, comps []nn.ComponentTelemetry) {
		for _, c := range comps {
			data = append(data, []string{
				indent + c.Name,
				c.Type,
				strconv.Itoa(c.Parameters),
				formatShape(c.InputShape),
				formatShape(c.OutputShape),
			})
			walk(indent+"  ", c.Blocks)
		}
	}
	walk("", bp.Components)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"NAME", "TYPE", "PARAMETERS", "INPUT", "OUTPUT"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(out, "\nchannel %d, vector length %d (%d per band), %d blocks\n",
		bp.Channel, bp.VecLen, bp.BandVecLen, bp.NumberBlocks)
	fmt.Fprintf(out, "total parameters %d\n", bp.TotalParams)
}

func formatShape(shape []int) string {
	if len(shape) == 0 {
		return "-"
	}
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	return strings.Join(dims, "x")
}

func FuseHandler(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	weights, _ := flags.GetString("weights")
	panPath, _ := flags.GetString("pan")
	msPath, _ := flags.GetString("ms")
	output, _ := flags.GetString("output")
	useGPU, _ := flags.GetBool("gpu")
	cfg.Entropy, _ = flags.GetBool("entropy")

	panImg, err := readImage(panPath)
	if err != nil {
		return err
	}
	if n := bandCount(panImg); n != 1 {
		return fmt.Errorf("%s: panchromatic image must be grayscale, got %d bands", panPath, n)
	}
	msImg, err := readImage(msPath)
	if err != nil {
		return err
	}

	guide := imageToTensor(panImg)
	spectral := imageToTensor(msImg)
	if !flags.Changed("channel") {
		cfg.Channel = spectral.Shape[1]
	}

	params, err := nn.LoadParams(weights, cfg)
	if err != nil {
		return err
	}

	if useGPU {
		kernel, err := gpu.NewSoftmaxKernel(slog.Default())
		if err != nil {
			return fmt.Errorf("gpu backend: %w", err)
		}
		defer kernel.Release()
		cfg.Backend = kernel
	}

	unit, err := nn.New(cfg, params)
	if err != nil {
		return err
	}
	res, err := unit.ForwardDetailed(guide, spectral)
	if err != nil {
		return err
	}
	if res.Entropy != nil {
		stats := nn.Summarize(res.Entropy.Data)
		slog.Info("band distribution entropy", "mean", stats.Mean, "min", stats.Min, "max", stats.Max)
	}

	img, err := tensorToImage(res.Output)
	if err != nil {
		return err
	}
	if err := writePNG(output, img); err != nil {
		return err
	}
	slog.Info("wrote fused image", "path", output,
		"size", fmt.Sprintf("%dx%d", res.Geometry.FineWidth, res.Geometry.FineHeight),
		"bands", res.Geometry.Channel)
	return nil
}
