package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned when a run is not in the catalog
var ErrRunNotFound = errors.New("run not found")

// Store is the capture catalog. It records which archives each queue run
// produced; the samples themselves stay in the archive files.
type Store interface {
	// CreateRun registers a new queue run and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - receiver: Receiver device type (e.g., "RTL-SDR")
	//   - generator: Instrument identity, empty when no instrument is connected
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	CreateRun(ctx context.Context, receiver, generator string, config any) (runID uuid.UUID, err error)

	// Run retrieves a queue run by its identifier. ErrRunNotFound is returned
	// for an unknown identifier.
	Run(ctx context.Context, id uuid.UUID) (run *Run, err error)

	// Runs returns every run, ordered by start time.
	Runs(ctx context.Context) (runs []*Run, err error)

	// StoreCapture records a completed capture of the run and returns its row ID.
	StoreCapture(ctx context.Context, runID uuid.UUID, c *Capture) (captureID int64, err error)

	// Captures returns the captures of a run in queue order, filtered by the
	// given options.
	Captures(ctx context.Context, runID uuid.UUID, opts ...CaptureOption) (captures []*Capture, err error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
