package storage

import (
	"database/sql"
	"errors"

	"github.com/roman-kulish/radio-telescope/internal/experiment"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

// NewCapture builds the catalog entry of a completed queue item. seq is the
// one-based queue position.
func NewCapture(seq int, spec experiment.Spec, c *experiment.Capture) *Capture {
	entry := Capture{
		Seq:        seq,
		Kind:       c.Kind.String(),
		Prefix:     spec.Prefix,
		Path:       c.Path,
		Timestamp:  c.Stamp.Wall,
		JulianDate: c.Stamp.JulianDate,
		LST:        c.Stamp.LST,
		SampleRate: c.Receiver.SampleRate,
		CenterFreq: c.Receiver.CenterFreq,
		Gain:       c.Receiver.Gain,
		Direct:     c.Receiver.Direct,
		NBlocks:    spec.BlockCount,
		NSamples:   spec.BlockSize,
		Alt:        spec.Pointing.Alt,
		Az:         spec.Pointing.Az,
		Size:       c.Size,
	}

	if c.Tone != nil {
		entry.Tone = &Tone{
			FrequencyHz:  c.Tone.FrequencyHz,
			AmplitudeDBm: c.Tone.AmplitudeDBm,
			RFOn:         c.Tone.RFOn,
		}
	}

	return &entry
}

func toCaptureData(c *Capture) *captureData {
	data := captureData{
		RunID:      c.RunID,
		Seq:        c.Seq,
		Kind:       c.Kind,
		Prefix:     c.Prefix,
		Path:       c.Path,
		UnixTime:   timing.UnixSeconds(c.Timestamp),
		JulianDate: c.JulianDate,
		LST:        c.LST,
		SampleRate: c.SampleRate,
		CenterFreq: c.CenterFreq,
		Gain:       c.Gain,
		Direct:     c.Direct,
		NBlocks:    c.NBlocks,
		NSamples:   c.NSamples,
		Alt:        c.Alt,
		Az:         c.Az,
		Size:       c.Size,
	}

	if c.Tone != nil {
		data.SiggenFreq = sql.NullFloat64{Float64: c.Tone.FrequencyHz, Valid: true}
		data.SiggenAmp = sql.NullFloat64{Float64: c.Tone.AmplitudeDBm, Valid: true}
		data.SiggenRFOn = sql.NullBool{Bool: c.Tone.RFOn, Valid: true}
	}

	return &data
}

func fromCaptureData(data *captureData) *Capture {
	c := Capture{
		ID:         data.ID,
		RunID:      data.RunID,
		Seq:        data.Seq,
		Kind:       data.Kind,
		Prefix:     data.Prefix,
		Path:       data.Path,
		Timestamp:  timing.FromUnixSeconds(data.UnixTime),
		JulianDate: data.JulianDate,
		LST:        data.LST,
		SampleRate: data.SampleRate,
		CenterFreq: data.CenterFreq,
		Gain:       data.Gain,
		Direct:     data.Direct,
		NBlocks:    data.NBlocks,
		NSamples:   data.NSamples,
		Alt:        data.Alt,
		Az:         data.Az,
		Size:       data.Size,
	}

	if data.SiggenFreq.Valid {
		c.Tone = &Tone{
			FrequencyHz:  data.SiggenFreq.Float64,
			AmplitudeDBm: data.SiggenAmp.Float64,
			RFOn:         data.SiggenRFOn.Bool,
		}
	}

	return &c
}
