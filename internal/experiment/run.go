package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/driver"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

const dirPerm = 0o755

// ErrNoGenerator is returned when a calibration is run without an instrument
var ErrNoGenerator = errors.New("calibration requires a signal generator")

// Generator is the part of the instrument façade a calibration needs
type Generator interface {
	ApplySignal(freqMHz, ampDBm float64, rfOn bool) error
	FrequencyHz() (float64, error)
	AmplitudeDBm() (float64, error)
	RFState() (bool, error)
	SetRFOff() error
}

// Available reports whether gen can serve a calibration. A nil interface and
// a generator reporting itself disconnected, such as a nil *siggen.Generator
// stored in the interface, both count as absent.
func Available(gen Generator) bool {
	if gen == nil {
		return false
	}
	if c, ok := gen.(interface{ Connected() bool }); ok {
		return c.Connected()
	}
	return true
}

// Env carries the collaborators of a run
type Env struct {
	Clock  timing.Clock
	Logger *slog.Logger
}

// WithClock sets the wall-clock source used to timestamp captures
func WithClock(clock timing.Clock) func(e *Env) {
	return func(e *Env) {
		e.Clock = clock
	}
}

// WithLogger sets the logger for the run
func WithLogger(logger *slog.Logger) func(e *Env) {
	return func(e *Env) {
		e.Logger = logger
	}
}

// Capture describes an archive produced by a run
type Capture struct {
	Path     string
	Kind     archive.Kind
	Receiver sdr.Settings  // Receiver state read back after the capture
	Tone     *archive.Tone // Queried instrument state, calibrations only
	Stamp    timing.Stamp
	Size     int64 // Archive size in bytes
}

// Run executes the experiment and returns the archive path
func (s Spec) Run(ctx context.Context, rx sdr.Receiver, gen Generator, options ...func(e *Env)) (string, error) {
	c, err := s.Execute(ctx, rx, gen, options...)
	if err != nil {
		return "", err
	}
	return c.Path, nil
}

// Execute configures the receiver, programs the tone for calibrations,
// captures clean blocks, timestamps them and writes one archive.
//
// Observations never touch gen, which may be nil. When anything fails after
// the tone was applied, RF output is switched off before returning.
func (s Spec) Execute(ctx context.Context, rx sdr.Receiver, gen Generator, options ...func(e *Env)) (c *Capture, err error) {
	env := Env{
		Clock:  timing.SystemClock(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(&env)
	}

	if err = s.Validate(); err != nil {
		return nil, driver.NewConfigError(err.Error())
	}
	if s.NeedsGenerator() && !Available(gen) {
		return nil, ErrNoGenerator
	}
	if s.OutDir != "" {
		if err = os.MkdirAll(s.OutDir, dirPerm); err != nil {
			return nil, &archive.WriteError{Path: s.OutDir, Err: err}
		}
	}

	if err = sdr.Configure(rx, s.Settings()); err != nil {
		return nil, fmt.Errorf("configuring receiver: %w", err)
	}

	switch s.Kind {
	case KindCalibration:
		defer func() {
			if err == nil {
				return
			}
			if rfErr := gen.SetRFOff(); rfErr != nil {
				err = errors.Join(err, fmt.Errorf("disabling RF output: %w", rfErr))
			}
		}()

		if err = gen.ApplySignal(s.Tone.FreqMHz, s.Tone.AmpDBm, true); err != nil {
			return nil, fmt.Errorf("applying signal: %w", err)
		}
	case KindObservation:
	}

	buf, err := sdr.CaptureClean(ctx, rx, s.BlockSize, s.BlockCount)
	if err != nil {
		return nil, err
	}

	c = &Capture{
		Kind:     s.Kind,
		Receiver: rx.State(),
		Stamp:    timing.NewStamp(env.Clock.Now(), s.Observer.Lon),
	}

	if s.Kind == KindCalibration {
		if c.Tone, err = queryTone(gen); err != nil {
			return nil, fmt.Errorf("querying signal generator: %w", err)
		}
		if err = gen.SetRFOff(); err != nil {
			return nil, fmt.Errorf("disabling RF output: %w", err)
		}
	}

	if c.Path, err = archive.NextPath(s.OutDir, s.Prefix, s.Kind, c.Stamp.Wall); err != nil {
		return nil, &archive.WriteError{Path: s.OutDir, Err: err}
	}

	record := archive.Record{
		Samples:  buf,
		Receiver: c.Receiver,
		Stamp:    c.Stamp,
		Pointing: s.Pointing,
		Observer: s.Observer,
		Tone:     c.Tone,
	}
	if err = archive.Write(c.Path, &record); err != nil {
		return nil, err
	}

	if info, statErr := os.Stat(c.Path); statErr == nil {
		c.Size = info.Size()
	}

	env.Logger.Info("archive written",
		slog.String("path", c.Path),
		slog.String("kind", s.Kind.String()),
		slog.String("size", humanize.Bytes(uint64(c.Size))),
	)

	return c, nil
}

func queryTone(gen Generator) (*archive.Tone, error) {
	freq, err := gen.FrequencyHz()
	if err != nil {
		return nil, err
	}

	amp, err := gen.AmplitudeDBm()
	if err != nil {
		return nil, err
	}

	on, err := gen.RFState()
	if err != nil {
		return nil, err
	}

	return &archive.Tone{FrequencyHz: freq, AmplitudeDBm: amp, RFOn: on}, nil
}
