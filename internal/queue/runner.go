package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/radio-telescope/internal/experiment"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

// CompletionHook is called after every Completed item. Its error is logged
// and never fails the queue, since the archive is already on disk.
type CompletionHook func(ctx context.Context, item Item, c *experiment.Capture) error

// WithDecider enables interactive mode. Without a decider every item is
// confirmed without blocking.
func WithDecider(d Decider) func(r *Runner) {
	return func(r *Runner) {
		r.decider = d
	}
}

// WithOutput sets the writer receiving item summaries and progress lines
func WithOutput(w io.Writer) func(r *Runner) {
	return func(r *Runner) {
		r.out = w
	}
}

// WithCadence sets the minimum interval between the starts of consecutive
// observation items. Calibrations do not count.
func WithCadence(d time.Duration) func(r *Runner) {
	return func(r *Runner) {
		r.cadence = d
	}
}

// WithClock sets the clock used for cadence and capture timestamps
func WithClock(c timing.Clock) func(r *Runner) {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithCompletionHook registers a hook called after every Completed item
func WithCompletionHook(h CompletionHook) func(r *Runner) {
	return func(r *Runner) {
		r.hooks = append(r.hooks, h)
	}
}

// WithLogger sets the logger for the runner
func WithLogger(logger *slog.Logger) func(r *Runner) {
	return func(r *Runner) {
		r.logger = logger
	}
}

// Runner executes experiment specs strictly in order against a borrowed
// receiver and an optional signal generator. It never closes either handle;
// disabling RF output and releasing the receiver is the caller's job.
type Runner struct {
	items []Item
	rx    sdr.Receiver
	gen   experiment.Generator

	decider Decider
	out     io.Writer
	cadence time.Duration
	clock   timing.Clock
	hooks   []CompletionHook

	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// NewRunner creates a runner over a copy of specs. gen may be nil when the
// queue holds no calibrations; a generator that is not experiment.Available
// is treated the same way, so calibrations fail with
// experiment.ErrNoGenerator.
func NewRunner(specs []experiment.Spec, rx sdr.Receiver, gen experiment.Generator, options ...func(r *Runner)) *Runner {
	if !experiment.Available(gen) {
		gen = nil
	}

	r := Runner{
		items:  make([]Item, len(specs)),
		rx:     rx,
		gen:    gen,
		out:    io.Discard,
		clock:  timing.SystemClock(),
		sleep:  sleepContext,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for i, spec := range specs {
		r.items[i] = Item{Index: i, Total: len(specs), Spec: spec, State: Pending}
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Items returns a snapshot of the queue items and their states
func (r *Runner) Items() []Item {
	return append([]Item(nil), r.items...)
}

// Run executes the queue. It returns the archive paths of the Completed items
// in execution order.
//
// An operator quit marks the current and remaining items Aborted and returns
// without error. A failed item stops the queue: the items after it stay
// Pending and the failure is returned as *ItemError together with the paths
// completed so far. A cancelled context aborts the remaining items between
// two items.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	var (
		paths    []string
		obsStart time.Time
	)

	r.logger.Info("queue started", slog.Int("items", len(r.items)), slog.Bool("interactive", r.decider != nil))

	for i := range r.items {
		item := &r.items[i]
		spec := item.Spec

		if err := ctx.Err(); err != nil {
			r.abortFrom(i)
			return paths, fmt.Errorf("queue interrupted: %w", err)
		}

		if r.cadence > 0 && spec.Kind == experiment.KindObservation && !obsStart.IsZero() {
			if wait := r.cadence - r.clock.Now().Sub(obsStart); wait > 0 {
				r.printf("  sleeping %.1fs until next cadence...\n", wait.Seconds())
				if err := r.sleep(ctx, wait); err != nil {
					r.abortFrom(i)
					return paths, fmt.Errorf("queue interrupted: %w", err)
				}
			}
		}

		if err := WriteSummary(r.out, *item); err != nil {
			r.logger.Warn("error writing summary", slog.String("error", err.Error()))
		}

		decision, err := r.decide(ctx, *item)
		if err != nil {
			r.abortFrom(i)
			return paths, fmt.Errorf("asking operator: %w", err)
		}

		switch decision {
		case Accept:
			item.State = Confirmed
		case Skip:
			item.State = Skipped
			r.printf("  skipped.\n")
			continue
		case Quit:
			r.abortFrom(i)
			r.printf("Queue aborted.\n")
			r.logger.Info("queue aborted by operator", slog.Int("completed", len(paths)))
			return paths, nil
		default:
			r.abortFrom(i)
			return paths, fmt.Errorf("unknown decision: %s", decision)
		}

		if spec.Kind == experiment.KindObservation {
			obsStart = r.clock.Now()
		}

		logger := r.logger.With(slog.Int("item", i+1), slog.String("prefix", spec.Prefix))

		c, err := spec.Execute(ctx, r.rx, r.gen,
			experiment.WithClock(r.clock),
			experiment.WithLogger(logger),
		)
		if err != nil {
			item.State = Failed
			item.Err = err
			logger.Error("queue item failed", slog.String("error", err.Error()))
			return paths, &ItemError{Index: i, Prefix: spec.Prefix, Err: err}
		}

		item.State = Completed
		item.Path = c.Path
		paths = append(paths, c.Path)
		r.printf("  -> %s\n", c.Path)

		for _, hook := range r.hooks {
			if err = hook(ctx, *item, c); err != nil {
				logger.Warn("completion hook failed", slog.String("error", err.Error()))
			}
		}
	}

	r.logger.Info("queue finished", slog.Int("completed", len(paths)))

	return paths, nil
}

func (r *Runner) decide(ctx context.Context, item Item) (Decision, error) {
	if r.decider == nil {
		return Accept, nil
	}
	return r.decider.Decide(ctx, item)
}

// abortFrom marks item i and every Pending item after it Aborted
func (r *Runner) abortFrom(i int) {
	for j := i; j < len(r.items); j++ {
		if r.items[j].State == Pending || r.items[j].State == Confirmed {
			r.items[j].State = Aborted
		}
	}
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
