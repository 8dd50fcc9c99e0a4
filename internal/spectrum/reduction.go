package spectrum

import (
	"github.com/roman-kulish/radio-telescope/internal/archive"
)

// Reduce pairs s with the capture state of rec so it can be stored without
// the raw samples
func Reduce(rec *archive.Record, s *Spectrum) *archive.Reduction {
	return &archive.Reduction{
		Meta: archive.Meta{
			Receiver: rec.Receiver,
			Stamp:    rec.Stamp,
			Pointing: rec.Pointing,
			Observer: rec.Observer,
			Tone:     rec.Tone,
			NBlocks:  rec.Samples.BlockCount,
			NSamples: rec.Samples.BlockSize,
		},
		PSD:   s.PSD,
		Std:   s.Std,
		Freqs: s.Freqs,
	}
}

// FromReduction restores the integrated spectrum of a stored reduction.
// Per-block rows are not stored, so Blocks returns nil.
func FromReduction(r *archive.Reduction) *Spectrum {
	return &Spectrum{
		Freqs:   r.Freqs,
		PSD:     r.PSD,
		Std:     r.Std,
		NBlocks: r.NBlocks,
	}
}
