package storage

import (
	"database/sql"

	"github.com/google/uuid"
)

type captureData struct {
	ID         int64
	RunID      uuid.UUID
	Seq        int
	Kind       string
	Prefix     string
	Path       string
	UnixTime   float64
	JulianDate float64
	LST        float64
	SampleRate float64
	CenterFreq float64
	Gain       float64
	Direct     bool
	NBlocks    int
	NSamples   int
	Alt        float64
	Az         float64
	SiggenFreq sql.NullFloat64
	SiggenAmp  sql.NullFloat64
	SiggenRFOn sql.NullBool
	Size       int64
}
