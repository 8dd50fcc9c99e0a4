package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/radio-telescope/cmd/waterfall/app"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	config := app.NewConfig()

	var format, theme, timeZone string
	var minPower, maxPower float64

	cmd := &cobra.Command{
		Use:           "waterfall -o output archive.npz...",
		Short:         "Render the per-block power spectra of archives as a waterfall image",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Inputs = args
			config.Format = app.ImageFormat(format)
			config.Theme = app.ColorTheme(theme)

			if cmd.Flags().Changed("min-power") {
				config.MinPower = &minPower
			}
			if cmd.Flags().Changed("max-power") {
				config.MaxPower = &maxPower
			}

			loc, err := time.LoadLocation(timeZone)
			if err != nil {
				return err
			}
			config.TimeZone = loc

			if err = config.Normalize(); err != nil {
				return err
			}

			return app.Run(cmd.Context(), config, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&config.OutputFile, "output", "o", "", "Path to the output file")
	flags.StringVarP(&format, "format", "f", string(app.ImagePNG), "Output image format. [png, jpeg]")
	flags.StringVarP(&theme, "theme", "t", string(app.EnhancedTheme), "Color theme. [classic, grayscale, jungle, thermal, marine, enhanced]")
	flags.StringVar(&timeZone, "tz", "UTC", "Time zone of the time scale, e.g. America/Los_Angeles")
	flags.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power in dB (format nn.n)")
	flags.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power in dB (format nn.n)")
	flags.BoolVar(&config.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
