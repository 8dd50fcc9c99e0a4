package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/roman-kulish/radio-telescope/internal/experiment"
	"github.com/roman-kulish/radio-telescope/internal/queue"
	"github.com/roman-kulish/radio-telescope/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func simulatedConfig(t *testing.T) *Config {
	t.Helper()

	config, err := LoadConfig(viper.New(), "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	config.Receiver.Simulate = true
	config.Generator.Simulate = true
	config.Queue.Confirm = false
	return config
}

func writePlan(t *testing.T, dir, experiments string) string {
	t.Helper()

	content := "defaults:\n" +
		"  outDir: " + dir + "\n" +
		"  blockSize: 256\n" +
		"  blockCount: 2\n" +
		"  direct: false\n" +
		"  centerFreq: 1420e6\n" +
		"  sampleRate: 2.56e6\n" +
		"  pointing: {alt: 45, az: 180}\n" +
		"experiments:\n" + experiments

	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Simulated(t *testing.T) {
	dir := t.TempDir()
	config := simulatedConfig(t)
	config.Storage.Catalog = filepath.Join(dir, "catalog.db")
	config.Storage.Bundle = filepath.Join(dir, "run.tar.gz")

	planPath := writePlan(t, dir, `
  - kind: obs
    prefix: sky
  - kind: cal
    prefix: tone
    tone: {freqMHz: 1420.4, ampDBm: -40}
`)

	var out bytes.Buffer
	paths, err := Run(context.Background(), config, planPath, Console{In: strings.NewReader(""), Out: &out}, discard)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Run() returned %d paths, want 2", len(paths))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("archive %s: %v", path, err)
		}
	}
	if !strings.Contains(filepath.Base(paths[0]), "sky_obs_") || !strings.Contains(filepath.Base(paths[1]), "tone_cal_") {
		t.Errorf("archive names = %v", paths)
	}

	if _, err := os.Stat(config.Storage.Bundle); err != nil {
		t.Errorf("bundle: %v", err)
	}
	if !strings.Contains(out.String(), "archived 2 file(s)") {
		t.Errorf("output does not report the bundle:\n%s", out.String())
	}

	store := storage.NewSqliteStore(config.Storage.Catalog)
	defer store.Close()

	ctx := context.Background()
	runs, err := store.Runs(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Runs() = %v, %v", runs, err)
	}
	if runs[0].Generator == nil || !strings.Contains(*runs[0].Generator, "N9310A") {
		t.Errorf("run generator = %v", runs[0].Generator)
	}

	captures, err := store.Captures(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("Captures() error = %v", err)
	}
	if len(captures) != 2 {
		t.Fatalf("Captures() returned %d entries, want 2", len(captures))
	}
	if captures[0].Tone != nil || captures[0].Path != paths[0] {
		t.Errorf("observation entry = %+v", captures[0])
	}
	if tone := captures[1].Tone; tone == nil || math.Abs(tone.FrequencyHz-1.4204e9) > 1 || tone.AmplitudeDBm != -40 || !tone.RFOn {
		t.Errorf("calibration tone = %+v", captures[1].Tone)
	}

	runID := runs[0].ID.String()
	tests := []struct {
		name    string
		query   CatalogQuery
		want    []string
		notWant []string
	}{
		{
			name:  "runs",
			query: CatalogQuery{},
			want:  []string{runID, "N9310A"},
		},
		{
			name:    "calibrations",
			query:   CatalogQuery{RunID: runID, Kind: "cal"},
			want:    []string{"run " + runID, paths[1]},
			notWant: []string{paths[0]},
		},
		{
			name:    "from after the run",
			query:   CatalogQuery{RunID: runID, From: captures[1].Timestamp.Add(time.Hour)},
			want:    []string{"run " + runID},
			notWant: []string{paths[0], paths[1]},
		},
		{
			name:    "to before the calibration",
			query:   CatalogQuery{RunID: runID, To: captures[1].Timestamp.Add(-time.Microsecond)},
			want:    []string{paths[0]},
			notWant: []string{paths[1]},
		},
		{
			name:  "open range",
			query: CatalogQuery{RunID: runID, From: captures[0].Timestamp.Add(-time.Hour)},
			want:  []string{paths[0], paths[1]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var listing bytes.Buffer
			if err := PrintCatalog(ctx, &listing, config.Storage.Catalog, tt.query); err != nil {
				t.Fatalf("PrintCatalog() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(listing.String(), want) {
					t.Errorf("PrintCatalog() output misses %q:\n%s", want, listing.String())
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(listing.String(), notWant) {
					t.Errorf("PrintCatalog() output lists %q:\n%s", notWant, listing.String())
				}
			}
		})
	}

	err = PrintCatalog(ctx, io.Discard, config.Storage.Catalog, CatalogQuery{RunID: uuid.NewString()})
	if !errors.Is(err, storage.ErrRunNotFound) {
		t.Errorf("PrintCatalog() of an unknown run error = %v, want ErrRunNotFound", err)
	}
}

func TestParseCatalogTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-03-09T21:15:42Z", want: time.Date(2024, 3, 9, 21, 15, 42, 0, time.UTC)},
		{in: "2024-03-09T23:15:42+02:00", want: time.Date(2024, 3, 9, 21, 15, 42, 0, time.UTC)},
		{in: "2024-03-09 21:15:42", want: time.Date(2024, 3, 9, 21, 15, 42, 0, time.UTC)},
		{in: "2024-03-09", want: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{in: "yesterday", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCatalogTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCatalogTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseCatalogTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRun_CalibrationWithoutGenerator(t *testing.T) {
	dir := t.TempDir()
	config := simulatedConfig(t)
	config.Generator.Simulate = false

	planPath := writePlan(t, dir, `
  - kind: obs
    prefix: sky
  - kind: cal
    prefix: tone
    tone: {freqMHz: 1420.4, ampDBm: -40}
  - kind: obs
    prefix: after
`)

	paths, err := Run(context.Background(), config, planPath, Console{In: strings.NewReader(""), Out: io.Discard}, discard)
	if !errors.Is(err, experiment.ErrNoGenerator) {
		t.Fatalf("Run() error = %v, want ErrNoGenerator", err)
	}

	var itemErr *queue.ItemError
	if !errors.As(err, &itemErr) || itemErr.Index != 1 {
		t.Errorf("Run() error = %v, want item 2 to fail", err)
	}
	if len(paths) != 1 {
		t.Errorf("Run() returned %d paths, want the one completed before the failure", len(paths))
	}
}

func TestRun_Interactive(t *testing.T) {
	dir := t.TempDir()
	config := simulatedConfig(t)
	config.Queue.Confirm = true

	planPath := writePlan(t, dir, `
  - kind: obs
    prefix: first
  - kind: obs
    prefix: second
  - kind: obs
    prefix: third
`)

	var out bytes.Buffer
	paths, err := Run(context.Background(), config, planPath, Console{In: strings.NewReader("s\n\nq\n"), Out: &out}, discard)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(paths) != 1 || !strings.Contains(filepath.Base(paths[0]), "second_obs_") {
		t.Errorf("Run() paths = %v, want only the second item", paths)
	}
	for _, want := range []string{"skipped.", "Queue aborted."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output does not contain %q:\n%s", want, out.String())
		}
	}
}

func TestRun_InvalidPlan(t *testing.T) {
	dir := t.TempDir()
	planPath := writePlan(t, dir, "  - kind: drift\n")

	_, err := Run(context.Background(), simulatedConfig(t), planPath, Console{Out: io.Discard}, discard)
	if err == nil || !strings.Contains(err.Error(), "loading plan") {
		t.Errorf("Run() error = %v, want a plan error", err)
	}
}

func TestInspectAndSpectrum(t *testing.T) {
	dir := t.TempDir()
	planPath := writePlan(t, dir, `
  - kind: cal
    prefix: tone
    tone: {freqMHz: 1420.4, ampDBm: -40}
`)

	paths, err := Run(context.Background(), simulatedConfig(t), planPath, Console{Out: io.Discard}, discard)
	if err != nil || len(paths) != 1 {
		t.Fatalf("Run() = %v, %v", paths, err)
	}

	var out bytes.Buffer
	if err = Inspect(&out, paths[0]); err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	for _, key := range []string{"data ", "siggen_freq", "siggen_rf_on", "lst", "nblocks"} {
		if !strings.Contains(out.String(), key) {
			t.Errorf("Inspect() output misses %q:\n%s", key, out.String())
		}
	}
	if !strings.Contains(out.String(), "int8(2, 256, 2)") {
		t.Errorf("Inspect() does not summarise the samples:\n%s", out.String())
	}

	out.Reset()
	if err = PrintSpectrum(&out, paths[0]); err != nil {
		t.Fatalf("PrintSpectrum() error = %v", err)
	}
	for _, want := range []string{"bins", "256", "total power", "tone"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("PrintSpectrum() output misses %q:\n%s", want, out.String())
		}
	}

	if err = Inspect(io.Discard, filepath.Join(dir, "missing.npz")); err == nil {
		t.Error("Inspect() of a missing archive succeeded")
	}
}

func TestReduce(t *testing.T) {
	dir := t.TempDir()
	planPath := writePlan(t, dir, `
  - kind: cal
    prefix: tone
    tone: {freqMHz: 1420.4, ampDBm: -40}
`)

	paths, err := Run(context.Background(), simulatedConfig(t), planPath, Console{Out: io.Discard}, discard)
	if err != nil || len(paths) != 1 {
		t.Fatalf("Run() = %v, %v", paths, err)
	}

	var fromCapture bytes.Buffer
	if err = PrintSpectrum(&fromCapture, paths[0]); err != nil {
		t.Fatalf("PrintSpectrum() error = %v", err)
	}

	tests := []struct {
		name   string
		outDir string
		want   string
	}{
		{name: "next to the capture", want: ReducedPath(paths[0], "")},
		{name: "output directory", outDir: filepath.Join(dir, "reduced"), want: filepath.Join(dir, "reduced", strings.TrimSuffix(filepath.Base(paths[0]), ".npz")+"_psd.npz")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.outDir != "" {
				if err := os.MkdirAll(tt.outDir, 0o755); err != nil {
					t.Fatal(err)
				}
			}

			dest, err := Reduce(paths[0], tt.outDir)
			if err != nil {
				t.Fatalf("Reduce() error = %v", err)
			}
			if dest != tt.want {
				t.Errorf("Reduce() = %s, want %s", dest, tt.want)
			}

			if _, err = os.Stat(dest); err != nil {
				t.Fatalf("reduced archive: %v", err)
			}

			var out bytes.Buffer
			if err = PrintSpectrum(&out, dest); err != nil {
				t.Fatalf("PrintSpectrum() of the reduced archive error = %v", err)
			}
			want := strings.Replace(fromCapture.String(), paths[0], dest, 1)
			if out.String() != want {
				t.Errorf("PrintSpectrum() of the reduced archive:\n%s\nwant:\n%s", out.String(), want)
			}

			out.Reset()
			if err = Inspect(&out, dest); err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			for _, key := range []string{"psd", "freqs", "float64(256,)", "siggen_freq"} {
				if !strings.Contains(out.String(), key) {
					t.Errorf("Inspect() output misses %q:\n%s", key, out.String())
				}
			}
		})
	}
}
