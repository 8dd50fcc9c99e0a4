package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/spectrum"
	"github.com/roman-kulish/radio-telescope/internal/storage"
)

// Inspect prints every stored field of the archive at path by key. Arrays
// are summarised instead of dumped.
func Inspect(w io.Writer, path string) error {
	fields, err := archive.ReadFields(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s\n", path)
	for _, key := range fields.Keys() {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", key, formatField(fields[key]))
	}
	return tw.Flush()
}

func formatField(v any) string {
	switch v := v.(type) {
	case float64:
		return fmt.Sprintf("%.12g", v)
	case []float64:
		if len(v) == 0 {
			return "float64(0,)"
		}
		return fmt.Sprintf("float64(%d,) min=%.6g max=%.6g", len(v), slices.Min(v), slices.Max(v))
	default:
		return fmt.Sprint(v)
	}
}

// PrintSpectrum prints the integrated power spectrum summary of the archive
// at path: total power, strongest bin and standard error. path may hold raw
// samples or a reduced spectrum written by Reduce.
func PrintSpectrum(w io.Writer, path string) error {
	s, meta, err := loadSpectrum(path)
	if err != nil {
		return err
	}

	peak := 0
	for i, p := range s.PSD {
		if p > s.PSD[peak] {
			peak = i
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s (%s)\n", path, meta.Kind())
	_, _ = fmt.Fprintf(tw, "  bins\t%d\n", len(s.PSD))
	_, _ = fmt.Fprintf(tw, "  blocks\t%d\n", s.NBlocks)
	_, _ = fmt.Fprintf(tw, "  span\t%s .. %s\n", formatHz(s.Freqs[0]), formatHz(s.Freqs[len(s.Freqs)-1]))
	_, _ = fmt.Fprintf(tw, "  total power\t%.2f dB\n", spectrum.DB(s.TotalPower()))
	_, _ = fmt.Fprintf(tw, "  peak\t%.2f dB at %s\n", spectrum.DB(s.PSD[peak]), formatHz(s.Freqs[peak]))
	_, _ = fmt.Fprintf(tw, "  std error\t%.4g\n", s.Std)
	if meta.Tone != nil {
		hz := meta.Tone.FrequencyHz
		if hz >= s.Freqs[0] && hz <= s.Freqs[len(s.Freqs)-1] {
			_, _ = fmt.Fprintf(tw, "  tone\t%.2f dB at %s\n", spectrum.DB(s.PSD[s.BinAt(hz)]), formatHz(hz))
		} else {
			_, _ = fmt.Fprintf(tw, "  tone\t%s outside the captured band\n", formatHz(meta.Tone.FrequencyHz))
		}
	}
	return tw.Flush()
}

func loadSpectrum(path string) (*spectrum.Spectrum, *archive.Meta, error) {
	fields, err := archive.ReadFields(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if fields.IsReduction() {
		r, err := fields.Reduction()
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return spectrum.FromReduction(r), &r.Meta, nil
	}

	rec, err := fields.Record()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	s, err := spectrum.FromRecord(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("computing spectrum of %s: %w", path, err)
	}

	return s, &spectrum.Reduce(rec, s).Meta, nil
}

// ReducedPath names the reduced spectrum archive of the capture at path,
// placed in outDir or next to the capture when outDir is empty
func ReducedPath(path, outDir string) string {
	name := strings.TrimSuffix(filepath.Base(path), archive.Ext) + reducedSuffix + archive.Ext
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	return filepath.Join(outDir, name)
}

// Reduce computes the integrated spectrum of the capture at path and saves it
// with the capture metadata but without the samples. It returns the path
// written.
func Reduce(path, outDir string) (string, error) {
	rec, err := archive.Read(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	s, err := spectrum.FromRecord(rec)
	if err != nil {
		return "", fmt.Errorf("computing spectrum of %s: %w", path, err)
	}

	dest := ReducedPath(path, outDir)
	if err = archive.WriteReduction(dest, spectrum.Reduce(rec, s)); err != nil {
		return "", err
	}
	return dest, nil
}

func formatHz(hz float64) string {
	return humanize.SIWithDigits(hz, 6, "Hz")
}

const reducedSuffix = "_psd"

// CatalogQuery selects what PrintCatalog lists
type CatalogQuery struct {
	RunID    string    // Empty lists the runs instead of captures
	Kind     string    // "cal" or "obs"; empty lists both
	From, To time.Time // Capture time bounds; a zero bound is open
}

// catalogTimeLayouts are accepted by ParseCatalogTime, in UTC unless the
// layout carries a zone
var catalogTimeLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

// ParseCatalogTime parses a capture time bound given on the command line
func ParseCatalogTime(s string) (time.Time, error) {
	for _, layout := range catalogTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339, %q or %q", s, time.DateTime, time.DateOnly)
}

// PrintCatalog lists the runs of the catalog at dbPath or, when q names a
// run, that run and its captures narrowed by kind and time.
func PrintCatalog(ctx context.Context, w io.Writer, dbPath string, q CatalogQuery) (err error) {
	if _, err = os.Stat(dbPath); err != nil {
		return fmt.Errorf("catalog '%s' is not readable: %w", dbPath, err)
	}

	store := storage.NewSqliteStore(dbPath)
	defer closeWithError(store, &err)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if q.RunID == "" {
		runs, err := store.Runs(ctx)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tRECEIVER\tGENERATOR")
		for _, run := range runs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", run.ID, run.StartTime.UTC().Format(time.DateTime), run.Receiver, runGenerator(run))
		}
		return tw.Flush()
	}

	id, err := uuid.Parse(q.RunID)
	if err != nil {
		return fmt.Errorf("parsing run id: %w", err)
	}

	run, err := store.Run(ctx, id)
	if err != nil {
		return fmt.Errorf("looking up run: %w", err)
	}

	opts := []storage.CaptureOption{storage.WithTimeRange(q.From, q.To)}
	if q.Kind != "" {
		opts = append(opts, storage.WithKind(q.Kind))
	}

	captures, err := store.Captures(ctx, id, opts...)
	if err != nil {
		return fmt.Errorf("listing captures: %w", err)
	}

	_, _ = fmt.Fprintf(w, "run %s  started %s  receiver %s  generator %s\n\n",
		run.ID, run.StartTime.UTC().Format(time.DateTime), run.Receiver, runGenerator(run))

	_, _ = fmt.Fprintln(tw, "SEQ\tKIND\tTIME\tALT\tAZ\tTONE\tSIZE\tPATH")
	for _, c := range captures {
		tone := "-"
		if c.Tone != nil {
			tone = fmt.Sprintf("%s %g dBm", formatHz(c.Tone.FrequencyHz), c.Tone.AmplitudeDBm)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%.2f\t%s\t%s\t%s\n",
			c.Seq, c.Kind, c.Timestamp.UTC().Format(time.DateTime), c.Alt, c.Az, tone, humanize.Bytes(uint64(c.Size)), c.Path)
	}
	return tw.Flush()
}

func runGenerator(run *storage.Run) string {
	if run.Generator == nil {
		return "-"
	}
	return *run.Generator
}
