package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/experiment"
	"github.com/roman-kulish/radio-telescope/internal/plan"
	"github.com/roman-kulish/radio-telescope/internal/queue"
	"github.com/roman-kulish/radio-telescope/internal/storage"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

// Console is the operator terminal
type Console struct {
	In  io.Reader
	Out io.Writer
}

// Run loads the queue plan at planPath and executes it. It returns the
// archive paths of the completed items, also when a later item failed.
func Run(ctx context.Context, config *Config, planPath string, console Console, logger *slog.Logger) (paths []string, err error) {
	base := experiment.DefaultCommon()
	base.Observer = config.Observer

	specs, err := plan.Load(planPath, base)
	if err != nil {
		return nil, fmt.Errorf("loading plan: %w", err)
	}

	logger.Info("plan loaded", slog.String("path", planPath), slog.Int("items", len(specs)))

	rx, err := createReceiver(&config.Receiver, logger)
	if err != nil {
		return nil, err
	}

	// gen stays a nil interface when no instrument is configured
	var gen experiment.Generator
	var identity string
	if config.GeneratorEnabled() {
		g, gErr := openGenerator(ctx, &config.Generator, logger)
		if gErr != nil {
			return nil, gErr
		}
		defer func() {
			if rErr := releaseGenerator(g); rErr != nil {
				err = errors.Join(err, fmt.Errorf("releasing signal generator: %w", rErr))
			}
		}()

		gen = g
		identity = g.Identity()
	} else if needsGenerator(specs) {
		logger.Warn("plan has calibrations but no signal generator is enabled; the queue stops at the first one")
	}

	options := []func(r *queue.Runner){
		queue.WithOutput(console.Out),
		queue.WithCadence(config.Queue.Cadence),
		queue.WithClock(createClock(&config.Timing, logger)),
	}
	if config.Queue.Confirm {
		options = append(options, queue.WithDecider(NewPrompt(console.In, console.Out)))
	}

	if config.Storage.Catalog != "" {
		store := storage.NewSqliteStore(config.Storage.Catalog)
		defer closeWithError(store, &err)

		var runID uuid.UUID
		if runID, err = store.CreateRun(ctx, rx.Device(), identity, config); err != nil {
			return nil, fmt.Errorf("creating catalog run: %w", err)
		}

		logger = logger.With(slog.String("run", runID.String()))
		options = append(options, queue.WithCompletionHook(catalogHook(store, runID)))
	}

	options = append(options, queue.WithLogger(logger))

	paths, err = queue.NewRunner(specs, rx, gen, options...).Run(ctx)
	if err != nil {
		return paths, err
	}

	if config.Storage.Bundle != "" && len(paths) > 0 {
		if err = archive.Bundle(config.Storage.Bundle, paths); err != nil {
			return paths, fmt.Errorf("bundling archives: %w", err)
		}
		_, _ = fmt.Fprintf(console.Out, "  archived %d file(s) -> %s\n", len(paths), config.Storage.Bundle)
	}

	return paths, nil
}

func needsGenerator(specs []experiment.Spec) bool {
	for _, spec := range specs {
		if spec.NeedsGenerator() {
			return true
		}
	}
	return false
}

func createClock(config *TimingConfig, logger *slog.Logger) timing.Clock {
	if config.NTPServer == "" {
		return timing.SystemClock()
	}
	return timing.NewNTPClock(config.NTPServer, timing.WithNTPLogger(logger))
}

func catalogHook(store storage.Store, runID uuid.UUID) queue.CompletionHook {
	return func(ctx context.Context, item queue.Item, c *experiment.Capture) error {
		if _, err := store.StoreCapture(ctx, runID, storage.NewCapture(item.Index+1, item.Spec, c)); err != nil {
			return fmt.Errorf("cataloguing %s: %w", c.Path, err)
		}
		return nil
	}
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
