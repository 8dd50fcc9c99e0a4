package archive

import (
	"fmt"

	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

// Kind selects the record schema
type Kind string

const (
	KindCalibration Kind = "cal"
	KindObservation Kind = "obs"
)

func (k Kind) String() string {
	return string(k)
}

// Tone is the signal generator state observed at capture time
type Tone struct {
	FrequencyHz  float64 // Queried CW frequency
	AmplitudeDBm float64 // Queried CW amplitude
	RFOn         bool    // Queried RF output state
}

// Record is a self-describing capture: the clean sample buffer plus the
// receiver state, pointing, observer location and timestamps. Tone is set for
// calibration records only.
type Record struct {
	Samples  *sdr.Buffer
	Receiver sdr.Settings
	Stamp    timing.Stamp
	Pointing telescope.Pointing
	Observer telescope.Location
	Tone     *Tone
}

// Kind returns the schema variant of the record
func (r *Record) Kind() Kind {
	if r.Tone != nil {
		return KindCalibration
	}
	return KindObservation
}

func (r *Record) Validate() error {
	if r.Samples == nil {
		return fmt.Errorf("archive.Record: no samples")
	}
	if err := r.Samples.Validate(); err != nil {
		return fmt.Errorf("archive.Record: %w", err)
	}
	if r.Samples.Direct() != r.Receiver.Direct {
		return fmt.Errorf("archive.Record: sample shape %v does not match %s sampling", r.Samples.Shape(), r.Receiver.Mode())
	}
	return nil
}
