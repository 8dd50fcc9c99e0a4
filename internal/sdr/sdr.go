package sdr

import (
	"context"
	"fmt"
)

// Settings is the receiver configuration pushed before every capture. It also
// describes the receiver state reported back by a Receiver.
type Settings struct {
	SampleRate float64 // Sample rate in Hz
	CenterFreq float64 // LO frequency in Hz; 0 in direct-sampling mode
	Gain       float64 // Tuner gain in dB
	Direct     bool    // Direct (real) sampling instead of tuned I/Q
}

func (s Settings) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("sdr.Settings: sample rate must be positive: %0.2f", s.SampleRate)
	}
	if s.CenterFreq < 0 {
		return fmt.Errorf("sdr.Settings: center frequency must not be negative: %0.2f", s.CenterFreq)
	}
	return nil
}

// Mode returns a short human-readable sampling mode
func (s Settings) Mode() string {
	if s.Direct {
		return "direct"
	}
	return "I/Q"
}

// Receiver is a shared, stateful SDR handle. Setters mutate the device state;
// the queue is the only caller of the setters during a run.
type Receiver interface {
	// Device returns the device type, e.g. "RTL-SDR"
	Device() string

	SetDirectSampling(enabled bool) error
	SetCenterFreq(hz float64) error
	SetSampleRate(hz float64) error
	SetGain(db float64) error

	// State returns the configuration currently applied to the device
	State() Settings

	// Capture is the raw block acquisition primitive. It blocks until
	// blockCount blocks of blockSize samples were read. The first block may
	// contain stale ring-buffer samples; use CaptureClean.
	Capture(ctx context.Context, blockSize, blockCount int) (*Buffer, error)
}

// Configure pushes s onto rx in the order the hardware expects: sampling mode,
// LO frequency, sample rate, gain.
func Configure(rx Receiver, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	centerFreq := s.CenterFreq
	if s.Direct {
		centerFreq = 0 // no meaningful LO in direct-sampling mode
	}

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"setting direct sampling", func() error { return rx.SetDirectSampling(s.Direct) }},
		{"setting center frequency", func() error { return rx.SetCenterFreq(centerFreq) }},
		{"setting sample rate", func() error { return rx.SetSampleRate(s.SampleRate) }},
		{"setting gain", func() error { return rx.SetGain(s.Gain) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}
