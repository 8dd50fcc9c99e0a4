package app

import (
	"context"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

const (
	testBlockSize  = 128
	testBlockCount = 4
	testSampleRate = 2.56e6
	testCenterFreq = 1420e6
)

var base = time.Date(2024, 3, 9, 21, 15, 42, 0, time.UTC)

func testRecord(t *testing.T, offset time.Duration, centerFreq float64) *archive.Record {
	t.Helper()

	mock := sdr.NewMock()
	mock.ToneOffset = 320e3

	settings := sdr.Settings{SampleRate: testSampleRate, CenterFreq: centerFreq}
	if err := sdr.Configure(mock, settings); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	buf, err := sdr.CaptureClean(context.Background(), mock, testBlockSize, testBlockCount)
	if err != nil {
		t.Fatalf("CaptureClean() error = %v", err)
	}

	return &archive.Record{
		Samples:  buf,
		Receiver: mock.State(),
		Stamp:    timing.NewStamp(base.Add(offset), telescope.NCH.Lon),
		Observer: telescope.NCH,
	}
}

func TestWaterfall_Add(t *testing.T) {
	wf := NewWaterfall()
	for i := 0; i < 3; i++ {
		if err := wf.Add(testRecord(t, time.Duration(i)*time.Minute, testCenterFreq)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	if wf.Width != testBlockSize || wf.Height != 3*testBlockCount {
		t.Fatalf("size = %dx%d, want %dx%d", wf.Width, wf.Height, testBlockSize, 3*testBlockCount)
	}
	if want := testCenterFreq - testSampleRate/2; math.Abs(wf.FrequencyMin-want) > 1 {
		t.Errorf("FrequencyMin = %f, want %f", wf.FrequencyMin, want)
	}

	blockDur := time.Duration(testBlockSize / testSampleRate * float64(time.Second))
	if want := base.Add(-(testBlockCount - 1) * blockDur); !wf.TimestampStart.Equal(want) {
		t.Errorf("TimestampStart = %v, want %v", wf.TimestampStart, want)
	}
	if want := base.Add(2 * time.Minute); !wf.TimestampEnd.Equal(want) {
		t.Errorf("TimestampEnd = %v, want %v", wf.TimestampEnd, want)
	}

	for y, row := range wf.Rows {
		if want := y%testBlockCount == 0; row.First != want {
			t.Errorf("row %d First = %v, want %v", y, row.First, want)
		}
	}

	// The mock tone must be the strongest bin of every row
	toneBin := int(math.Round(320e3/(testSampleRate/testBlockSize))) + testBlockSize/2
	for y, row := range wf.Rows {
		peak := 0
		for x, p := range row.Power {
			if p > row.Power[peak] {
				peak = x
			}
		}
		if peak != toneBin {
			t.Errorf("row %d peak bin = %d, want %d", y, peak, toneBin)
		}
	}
}

func TestWaterfall_AxisMismatch(t *testing.T) {
	wf := NewWaterfall()
	if err := wf.Add(testRecord(t, 0, testCenterFreq)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := wf.Add(testRecord(t, time.Minute, testCenterFreq+1e6)); err == nil {
		t.Error("Add() of a different frequency axis succeeded")
	}
}

func TestPowerHistogram_Bounds(t *testing.T) {
	h := NewPowerHistogram()
	if got := h.Bounds(); got != defaultPowerBounds() {
		t.Errorf("Bounds() of an empty histogram = %+v, want defaults", got)
	}

	for i := 0; i < 100; i++ {
		h.Update(-50 + float64(i%40))
	}
	h.Update(math.Inf(-1))

	b := h.Bounds()
	if b.Min > -48 || b.Max < -12 || b.Min >= b.Max {
		t.Errorf("Bounds() = %+v, want roughly [-50, -10]", b)
	}
}

func TestColorMapper(t *testing.T) {
	for _, theme := range []ColorTheme{ClassicTheme, GrayscaleTheme, JungleTheme, ThermalTheme, MarineTheme, EnhancedTheme} {
		t.Run(string(theme), func(t *testing.T) {
			cm := NewColorMapper(theme, PowerBounds{Min: -40, Max: 0})

			low, high := cm.Color(-40), cm.Color(0)
			if sameColor(low, high) {
				t.Errorf("bounds map to the same color %v", low)
			}
			if !sameColor(cm.Color(-100), low) || !sameColor(cm.Color(math.Inf(-1)), low) {
				t.Error("values below the range are not clamped to the first color")
			}
			if !sameColor(cm.Color(50), high) || !sameColor(cm.Color(math.Inf(1)), high) {
				t.Error("values above the range are not clamped to the last color")
			}
		})
	}

	if _, err := ParseColorTheme("rainbow"); err == nil {
		t.Error("ParseColorTheme() accepted an unknown theme")
	}
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

func TestRenderer_Render(t *testing.T) {
	wf := NewWaterfall()
	if err := wf.Add(testRecord(t, 0, testCenterFreq)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tests := []struct {
		name          string
		noAnnotations bool
		wantW, wantH  int
	}{
		{
			name:  "annotated",
			wantW: testBlockSize + defaultLeftBorder + defaultRightBorder,
			wantH: testBlockCount + defaultTopBorder + defaultBottomBorder,
		},
		{name: "bare", noAnnotations: true, wantW: testBlockSize, wantH: testBlockCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NewRenderer(RenderConfig{NoAnnotations: tt.noAnnotations}).Render(wf)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if size := img.Bounds().Size(); size.X != tt.wantW || size.Y != tt.wantH {
				t.Errorf("image size = %v, want %dx%d", size, tt.wantW, tt.wantH)
			}
		})
	}

	if _, err := NewRenderer(RenderConfig{}).Render(NewWaterfall()); err == nil {
		t.Error("Render() of an empty waterfall succeeded")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()

	var inputs []string
	for i := 0; i < 2; i++ {
		rec := testRecord(t, time.Duration(1-i)*time.Minute, testCenterFreq)
		path := filepath.Join(dir, archive.Filename("sky", archive.KindObservation, rec.Stamp.Wall))
		if err := archive.Write(path, rec); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		inputs = append(inputs, path)
	}

	config := NewConfig()
	config.Inputs = inputs
	config.OutputFile = filepath.Join(dir, "waterfall")
	config.NoAnnotations = true
	if err := config.Normalize(); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := Run(context.Background(), config, logger); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "waterfall.png"))
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if size := img.Bounds().Size(); size.X != testBlockSize || size.Y != 2*testBlockCount {
		t.Errorf("image size = %v, want %dx%d", size, testBlockSize, 2*testBlockCount)
	}
}

func TestConfig_Normalize(t *testing.T) {
	lo, hi := -10.0, -20.0

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "no inputs", modify: func(c *Config) { c.Inputs = nil }},
		{name: "no output", modify: func(c *Config) { c.OutputFile = "" }},
		{name: "format", modify: func(c *Config) { c.Format = "gif" }},
		{name: "theme", modify: func(c *Config) { c.Theme = "rainbow" }},
		{name: "power range", modify: func(c *Config) { c.MinPower, c.MaxPower = &lo, &hi }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			c.Inputs = []string{"a.npz"}
			c.OutputFile = "out"
			tt.modify(c)

			if err := c.Normalize(); err == nil {
				t.Error("Normalize() error = nil")
			}
		})
	}

	c := NewConfig()
	c.Inputs = []string{"a.npz"}
	c.OutputFile = "out"
	c.Format = "JPEG"
	if err := c.Normalize(); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if c.OutputFile != "out.jpeg" {
		t.Errorf("OutputFile = %q, want out.jpeg", c.OutputFile)
	}
}
