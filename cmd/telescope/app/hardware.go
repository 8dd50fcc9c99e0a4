package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/roman-kulish/radio-telescope/internal/driver"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/sdr/rtl"
	"github.com/roman-kulish/radio-telescope/internal/siggen"
)

const (
	openMaxInterval = 2 * time.Second

	// simulatedToneOffset places the mock receiver's tone away from DC
	simulatedToneOffset = 400e3
)

func createReceiver(config *ReceiverConfig, logger *slog.Logger) (sdr.Receiver, error) {
	if config.Simulate {
		logger.Warn("receiver simulation enabled, archives will hold synthetic samples")
		mock := sdr.NewMock()
		mock.ToneOffset = simulatedToneOffset
		return mock, nil
	}

	rx, err := rtl.New(config.Config, rtl.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating RTL-SDR receiver: %w", err)
	}
	return rx, nil
}

// openGenerator connects to the signal generator. The USBTMC node can show up
// a moment after the instrument is powered, so opening is retried with an
// exponential backoff. A wrong instrument is not retried.
func openGenerator(ctx context.Context, config *GeneratorConfig, logger *slog.Logger) (*siggen.Generator, error) {
	if config.Simulate {
		logger.Warn("signal generator simulation enabled")
		return siggen.New(siggen.NewSimulator(), siggen.WithLogger(logger))
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = openMaxInterval

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(config.OpenAttempts-1)), ctx)

	var gen *siggen.Generator
	op := func() error {
		g, err := siggen.Open(config.Device, siggen.WithLogger(logger))
		if err != nil {
			// a wrong instrument will not change; a silent one may still be enumerating
			var mismatch *driver.IdentityMismatchError
			if errors.As(err, &mismatch) && mismatch.Err == nil {
				return backoff.Permanent(err)
			}
			return err
		}
		gen = g
		return nil
	}

	notify := func(err error, next time.Duration) {
		logger.Warn(fmt.Sprintf("opening signal generator failed, retrying in %s: %s", next, err.Error()),
			slog.String("path", config.Device))
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("opening signal generator: %w", err)
	}
	return gen, nil
}

// releaseGenerator leaves the instrument with RF off and closes it
func releaseGenerator(gen *siggen.Generator) error {
	return errors.Join(gen.SetRFOff(), gen.Close())
}
