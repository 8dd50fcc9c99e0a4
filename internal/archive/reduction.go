package archive

import (
	"fmt"

	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

// Meta is the capture state stored alongside samples or a reduced spectrum
type Meta struct {
	Receiver sdr.Settings
	Stamp    timing.Stamp
	Pointing telescope.Pointing
	Observer telescope.Location
	Tone     *Tone // Calibrations only
	NBlocks  int
	NSamples int
}

// Kind returns the schema variant of the capture
func (m *Meta) Kind() Kind {
	if m.Tone != nil {
		return KindCalibration
	}
	return KindObservation
}

// Reduction is an integrated power spectrum saved with the metadata of the
// capture it was computed from, without the raw samples.
type Reduction struct {
	Meta

	PSD   []float64 // Mean normalised power per bin, DC-centred
	Std   float64   // Standard error of PSD, averaged over bins
	Freqs []float64 // Absolute frequency axis in Hz
}

func (r *Reduction) Validate() error {
	if len(r.PSD) == 0 {
		return fmt.Errorf("archive.Reduction: empty spectrum")
	}
	if len(r.Freqs) != len(r.PSD) {
		return fmt.Errorf("archive.Reduction: %d frequencies for %d bins", len(r.Freqs), len(r.PSD))
	}
	return nil
}

// Fields returns the archive entries of the reduction in write order
func (r *Reduction) Fields() []Field {
	return append([]Field{
		{KeyPSD, r.PSD},
		{KeyStd, r.Std},
		{KeyFreqs, r.Freqs},
	}, r.Meta.fields()...)
}

// WriteReduction writes exactly one reduced spectrum archive, atomically like
// Write.
func WriteReduction(path string, r *Reduction) error {
	if err := r.Validate(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return writeFields(path, r.Fields())
}

// ReadReduction loads a reduced spectrum archive written by WriteReduction
func ReadReduction(path string) (*Reduction, error) {
	fields, err := ReadFields(path)
	if err != nil {
		return nil, err
	}

	return fields.Reduction()
}

// Reduction decodes fields holding a reduced spectrum
func (f Fields) Reduction() (*Reduction, error) {
	d := decoder{f: f}
	r := Reduction{
		Meta:  d.meta(),
		PSD:   d.floats(KeyPSD),
		Std:   d.float(KeyStd),
		Freqs: d.floats(KeyFreqs),
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	return &r, nil
}

// IsReduction reports whether fields hold a reduced spectrum rather than
// raw samples
func (f Fields) IsReduction() bool {
	_, ok := f[KeyPSD]
	return ok
}
