package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telescope/internal/timing"
)

type captureQuery struct {
	kind     string
	from, to float64
}

// CaptureOption narrows the result of Captures
type CaptureOption func(*captureQuery)

// WithKind limits the result to captures of the given kind ("cal" or "obs")
func WithKind(kind string) CaptureOption {
	return func(q *captureQuery) {
		q.kind = kind
	}
}

// WithTimeRange limits the result to captures stamped within [from, to].
// A zero from or to leaves that end open.
func WithTimeRange(from, to time.Time) CaptureOption {
	return func(q *captureQuery) {
		if !from.IsZero() {
			q.from = timing.UnixSeconds(from)
		}
		if !to.IsZero() {
			q.to = timing.UnixSeconds(to)
		}
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string
	now    func() time.Time

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a catalog backed by the Sqlite database at dbPath.
// The database and its schema are created on the first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath, now: time.Now}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateRun(ctx context.Context, receiver, generator string, config any) (runID uuid.UUID, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	generatorData := sql.NullString{String: generator, Valid: generator != ""}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	id := uuid.New()
	if _, err = stmt.ExecContext(ctx, id, s.now().UTC(), receiver, generatorData, configData); err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}

	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var generator, config sql.NullString
	if err := row.Scan(&run.ID, &run.StartTime, &run.Receiver, &generator, &config); err != nil {
		return nil, err
	}
	if generator.Valid {
		run.Generator = &generator.String
	}
	if config.Valid {
		run.Config = &config.String
	}
	return &run, nil
}

func (s *SqliteStore) Run(ctx context.Context, id uuid.UUID) (run *Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	run, err = scanRun(stmt.QueryRowContext(ctx, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case err != nil:
		err = fmt.Errorf("scanning run: %w", err)
	}
	return
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*Run, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var run *Run
		if run, err = scanRun(rows); err != nil {
			err = fmt.Errorf("scanning run: %w", err)
			return
		}
		runs = append(runs, run)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreCapture(ctx context.Context, runID uuid.UUID, c *Capture) (captureID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	data := toCaptureData(c)
	data.RunID = runID

	result, err := tx.ExecContext(
		ctx,
		insertCaptureSQL,
		data.RunID,
		data.Seq,
		data.Kind,
		data.Prefix,
		data.Path,
		data.UnixTime,
		data.JulianDate,
		data.LST,
		data.SampleRate,
		data.CenterFreq,
		data.Gain,
		data.Direct,
		data.NBlocks,
		data.NSamples,
		data.Alt,
		data.Az,
		data.SiggenFreq,
		data.SiggenAmp,
		data.SiggenRFOn,
		data.Size,
	)
	if err != nil {
		err = fmt.Errorf("inserting capture: %w", err)
		return
	}

	if captureID, err = result.LastInsertId(); err != nil {
		err = fmt.Errorf("getting capture ID: %w", err)
		return
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func (s *SqliteStore) Captures(ctx context.Context, runID uuid.UUID, opts ...CaptureOption) (captures []*Capture, err error) {
	q := captureQuery{from: -math.MaxFloat64, to: math.MaxFloat64}
	for _, opt := range opts {
		opt(&q)
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCapturesSQL, runID, q.kind, q.kind, q.from, q.to)
	if err != nil {
		err = fmt.Errorf("querying captures: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data captureData
		if err = rows.Scan(
			&data.ID,
			&data.RunID,
			&data.Seq,
			&data.Kind,
			&data.Prefix,
			&data.Path,
			&data.UnixTime,
			&data.JulianDate,
			&data.LST,
			&data.SampleRate,
			&data.CenterFreq,
			&data.Gain,
			&data.Direct,
			&data.NBlocks,
			&data.NSamples,
			&data.Alt,
			&data.Az,
			&data.SiggenFreq,
			&data.SiggenAmp,
			&data.SiggenRFOn,
			&data.Size,
		); err != nil {
			err = fmt.Errorf("scanning capture: %w", err)
			return
		}
		captures = append(captures, fromCaptureData(&data))
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
