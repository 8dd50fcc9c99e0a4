package storage

import (
	"time"

	"github.com/google/uuid"
)

// Run is a single queue run. Every archive written during the run is
// recorded as a Capture.
type Run struct {
	ID        uuid.UUID `json:"id"`
	StartTime time.Time `json:"startTime"`
	Receiver  string    `json:"receiver"`            // Receiver device type, e.g. "RTL-SDR"
	Generator *string   `json:"generator,omitempty"` // Instrument identity, nil when none was connected
	Config    *string   `json:"config,omitempty"`    // Run configuration in JSON format
}

// Tone is the signal generator state recorded with a calibration capture
type Tone struct {
	FrequencyHz  float64 `json:"frequencyHz"`
	AmplitudeDBm float64 `json:"amplitudeDBm"`
	RFOn         bool    `json:"rfOn"`
}

// Capture is the catalog entry of one archive
type Capture struct {
	ID         int64     `json:"id"`
	RunID      uuid.UUID `json:"runID"`
	Seq        int       `json:"seq"` // Position in the queue, starting at 1
	Kind       string    `json:"kind"`
	Prefix     string    `json:"prefix"`
	Path       string    `json:"path"`
	Timestamp  time.Time `json:"timestamp"`
	JulianDate float64   `json:"jd"`
	LST        float64   `json:"lst"`
	SampleRate float64   `json:"sampleRate"`
	CenterFreq float64   `json:"centerFreq"`
	Gain       float64   `json:"gain"`
	Direct     bool      `json:"direct"`
	NBlocks    int       `json:"nblocks"`
	NSamples   int       `json:"nsamples"`
	Alt        float64   `json:"alt"`
	Az         float64   `json:"az"`
	Tone       *Tone     `json:"tone,omitempty"`
	Size       int64     `json:"size"`
}
