package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"rotathumb/pkg/config"
	"rotathumb/pkg/logging"
	"rotathumb/pkg/render"
	"rotathumb/pkg/rotation"
	"rotathumb/pkg/sheet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rotathumb",
		Short: "Rotate an image through a sweep of angles and save a thumbnail of each",
		Long: `Rotate an image through a sweep of angles and save a thumbnail of each.

With no flags the image ./data/ucla/ucla.png is rotated by 0, 10, ..., 340
degrees with a white background, each copy is shrunk to fit 28x28 and saved
as PNG to ./data/ucla/ucla-<angle>.`,
		SilenceUsage: true,
		RunE:         runSweep,
	}

	f := rootCmd.PersistentFlags()
	f.String("config", "", "YAML config file")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.StringP("input", "i", "", "Input image (png, jpg)")
	f.StringP("out", "o", "", "Output directory (default: directory of the input)")
	f.String("pattern", render.DefaultPattern, "Output file name, {name} and {angle} are replaced")
	f.Int("start", 0, "First angle in degrees, counter-clockwise")
	f.Int("step", 10, "Degrees between angles")
	f.Int("count", 35, "Number of angles")
	f.Int("size", render.DefaultSize, "Thumbnail box size in pixels")
	f.String("fill", render.DefaultFill, "Colour for pixels exposed by rotation (name or #rrggbb)")
	f.String("engine", rotation.EngineImaging, "Rotation engine (imaging, bild)")
	f.Bool("expand", false, "Grow the canvas to hold the whole rotated image")
	f.String("filter", render.DefaultFilter, "Resample filter (bicubic, lanczos, mitchell, linear, box, nearest)")
	f.Bool("grayscale", false, "Convert to grayscale before rotating")

	rootCmd.Flags().String("sheet", "", "Also write a PDF contact sheet of the frames to this path")

	rootCmd.AddCommand(newBenchCmd(), newDistributeCmd(), newFrameWorkerCmd())
	return rootCmd
}

// loadConfig merges defaults, the config file, the environment and any
// flags set on the command line, in that order
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.FromFileAndEnv(path)
	if err != nil {
		return cfg, err
	}

	job := &cfg.Render
	if flags.Changed("input") {
		job.Source, _ = flags.GetString("input")
	}
	if flags.Changed("out") {
		job.OutputDir, _ = flags.GetString("out")
	}
	if flags.Changed("pattern") {
		job.Pattern, _ = flags.GetString("pattern")
	}
	if flags.Changed("start") || flags.Changed("step") || flags.Changed("count") {
		start, _ := flags.GetInt("start")
		step, _ := flags.GetInt("step")
		count, _ := flags.GetInt("count")
		job.Angles = rotation.Angles(start, step, count)
	}
	if flags.Changed("size") {
		size, _ := flags.GetInt("size")
		job.Width, job.Height = size, size
	}
	if flags.Changed("fill") {
		job.Fill, _ = flags.GetString("fill")
	}
	if flags.Changed("engine") {
		job.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("expand") {
		job.Expand, _ = flags.GetBool("expand")
	}
	if flags.Changed("filter") {
		job.Filter, _ = flags.GetString("filter")
	}
	if flags.Changed("grayscale") {
		job.Grayscale, _ = flags.GetBool("grayscale")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("sheet") {
		cfg.SheetPath, _ = flags.GetString("sheet")
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogPretty); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := log.Logger.WithContext(cmd.Context())
	manifest, err := render.Run(ctx, cfg.Render)
	if err != nil {
		return err
	}

	if cfg.SheetPath != "" {
		if err := sheet.Create(manifest, cfg.SheetPath, sheet.DefaultConfig()); err != nil {
			return err
		}
		log.Info().Str("path", cfg.SheetPath).Msg("contact sheet written")
	}

	absDir, _ := filepath.Abs(cfg.Render.Dir())
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d thumbnails to %s\n", len(manifest.Outputs), absDir)
	return nil
}
