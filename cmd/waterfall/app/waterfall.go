package app

import (
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/spectrum"
)

// Row is the power spectrum of one capture block
type Row struct {
	Power     []float64 // Power per frequency bin in dB
	Timestamp time.Time // End of the block
	First     bool      // First block of an archive
}

// Waterfall stacks per-block power spectra of one or more archives sharing
// the same frequency axis, oldest first.
type Waterfall struct {
	Width, Height                int
	FrequencyMin, FrequencyMax   float64
	TimestampStart, TimestampEnd time.Time
	Histogram                    *PowerHistogram
	Rows                         []Row

	freqs []float64
}

func NewWaterfall() *Waterfall {
	return &Waterfall{Histogram: NewPowerHistogram()}
}

// Add appends every block of the archived capture. Blocks are contiguous, so
// block b of n ends (n-1-b) block durations before the capture timestamp.
func (w *Waterfall) Add(rec *archive.Record) error {
	s, err := spectrum.FromRecord(rec)
	if err != nil {
		return err
	}

	if w.freqs == nil {
		w.freqs = s.Freqs
		w.Width = len(s.Freqs)
		w.FrequencyMin = s.Freqs[0]
		w.FrequencyMax = s.Freqs[len(s.Freqs)-1]
	} else if !sameAxis(w.freqs, s.Freqs) {
		return fmt.Errorf("frequency axis differs from the first archive: %d bins from %0.0f Hz, want %d bins from %0.0f Hz",
			len(s.Freqs), s.Freqs[0], len(w.freqs), w.freqs[0])
	}

	blockDur := time.Duration(float64(rec.Samples.BlockSize) / rec.Receiver.SampleRate * float64(time.Second))
	blocks := s.Blocks()

	for b, block := range blocks {
		ts := rec.Stamp.Wall.Add(-time.Duration(len(blocks)-1-b) * blockDur)

		power := make([]float64, len(block))
		for i, p := range block {
			power[i] = spectrum.DB(p)
			w.Histogram.Update(power[i])
		}

		w.Rows = append(w.Rows, Row{Power: power, Timestamp: ts, First: b == 0})

		if w.TimestampStart.IsZero() || ts.Before(w.TimestampStart) {
			w.TimestampStart = ts
		}
		if ts.After(w.TimestampEnd) {
			w.TimestampEnd = ts
		}
	}

	w.Height = len(w.Rows)
	return nil
}

func sameAxis(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	step := math.Abs(a[len(a)-1]-a[0]) / float64(max(len(a)-1, 1))
	return math.Abs(a[0]-b[0]) <= step/2 && math.Abs(a[len(a)-1]-b[len(b)-1]) <= step/2
}
