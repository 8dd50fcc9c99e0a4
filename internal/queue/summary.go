package queue

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/radio-telescope/internal/experiment"
)

// WriteSummary prints what is about to be applied to the hardware
func WriteSummary(w io.Writer, item Item) error {
	s := item.Spec

	tone := "OFF"
	if s.Kind == experiment.KindCalibration {
		tone = s.Tone.String()
	}

	center := "n/a"
	if !s.Direct {
		center = humanize.SIWithDigits(s.CenterFreq, 3, "Hz")
	}

	_, err := fmt.Fprintf(w,
		"[%d/%d] %s (%s)\n  %s\n  nsamples=%d  nblocks=%d  sample_rate=%s  center=%s  gain=%g dB  mode=%s\n  siggen: %s\n",
		item.Index+1, item.Total, s.Prefix, s.Label(),
		s.Pointing,
		s.BlockSize, s.BlockCount, humanize.SIWithDigits(s.SampleRate, 2, "Hz"), center, s.Gain, s.Settings().Mode(),
		tone,
	)
	return err
}
