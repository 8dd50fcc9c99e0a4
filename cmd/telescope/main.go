package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roman-kulish/radio-telescope/cmd/telescope/app"
)

var (
	logLevel slog.LevelVar
	logger   = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "telescope",
	Short:         "Run radio telescope experiment queues and inspect their archives",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	runCmd := &cobra.Command{
		Use:   "run plan.yaml",
		Short: "Execute a queue plan",
		Args:  cobra.ExactArgs(1),
		RunE:  runQueue,
	}
	runCmd.Flags().BoolP("yes", "y", false, "Run every item without asking")
	runCmd.Flags().Bool("simulate", false, "Use the simulated receiver and signal generator")
	runCmd.Flags().String("catalog", "", "Record captures in this Sqlite catalog")
	runCmd.Flags().String("bundle", "", "Pack every archive of the run into this .tar.gz")
	runCmd.Flags().Duration("cadence", 0, "Minimum interval between observation starts")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "inspect archive.npz...",
		Short: "Print every stored field of archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := app.Inspect(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "spectrum archive.npz...",
		Short: "Print the power spectrum summary of archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := app.PrintSpectrum(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}
			return nil
		},
	})

	reduceCmd := &cobra.Command{
		Use:   "reduce archive.npz...",
		Short: "Save the integrated power spectrum of archives without their samples",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir, _ := cmd.Flags().GetString("out-dir")
			for _, path := range args {
				dest, err := app.Reduce(path, outDir)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), dest)
			}
			return nil
		},
	}
	reduceCmd.Flags().String("out-dir", "", "Write reduced archives here instead of next to each capture")
	rootCmd.AddCommand(reduceCmd)

	catalogCmd := &cobra.Command{
		Use:   "catalog catalog.db [run-id]",
		Short: "List catalogued runs, or the captures of one run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q app.CatalogQuery
			if len(args) == 2 {
				q.RunID = args[1]
			}

			flags := cmd.Flags()
			q.Kind, _ = flags.GetString("kind")
			for name, bound := range map[string]*time.Time{"from": &q.From, "to": &q.To} {
				value, _ := flags.GetString(name)
				if value == "" {
					continue
				}
				t, err := app.ParseCatalogTime(value)
				if err != nil {
					return fmt.Errorf("--%s: %w", name, err)
				}
				*bound = t
			}

			return app.PrintCatalog(cmd.Context(), cmd.OutOrStdout(), args[0], q)
		},
	}
	catalogCmd.Flags().String("kind", "", "Only list captures of this kind (cal or obs)")
	catalogCmd.Flags().String("from", "", "Only list captures taken at or after this time (UTC unless a zone is given)")
	catalogCmd.Flags().String("to", "", "Only list captures taken at or before this time (UTC unless a zone is given)")
	rootCmd.AddCommand(catalogCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	config, err := app.LoadConfig(viper.New(), configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("yes") {
		yes, _ := flags.GetBool("yes")
		config.Queue.Confirm = !yes
	}
	if flags.Changed("simulate") {
		simulate, _ := flags.GetBool("simulate")
		config.Receiver.Simulate = simulate
		config.Generator.Simulate = simulate
	}
	if flags.Changed("catalog") {
		config.Storage.Catalog, _ = flags.GetString("catalog")
	}
	if flags.Changed("bundle") {
		config.Storage.Bundle, _ = flags.GetString("bundle")
	}
	if flags.Changed("cadence") {
		config.Queue.Cadence, _ = flags.GetDuration("cadence")
	}
	if err = config.Validate(); err != nil {
		return err
	}

	level, _ := config.Settings.Level()
	logLevel.Set(level)

	start := time.Now()
	paths, err := app.Run(cmd.Context(), config, args[0], app.Console{In: os.Stdin, Out: cmd.OutOrStdout()}, logger)
	logger.Info("queue run ended", slog.Int("archives", len(paths)), slog.Duration("elapsed", time.Since(start).Round(time.Second)))

	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
