package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/driver"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/siggen"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
	"github.com/roman-kulish/radio-telescope/internal/timing"
)

// fakeGenerator records every call; failOn makes the named call fail
type fakeGenerator struct {
	calls  []string
	failOn string

	freqHz float64
	ampDBm float64
	rfOn   bool
}

func (g *fakeGenerator) call(name string) error {
	g.calls = append(g.calls, name)
	if name == g.failOn {
		return driver.NewCommunicationError("N9310A", name, errors.New("broken pipe"))
	}
	return nil
}

func (g *fakeGenerator) ApplySignal(freqMHz, ampDBm float64, rfOn bool) error {
	if err := g.call("ApplySignal"); err != nil {
		return err
	}
	g.freqHz, g.ampDBm, g.rfOn = freqMHz*1e6, ampDBm, rfOn
	return nil
}

func (g *fakeGenerator) FrequencyHz() (float64, error) {
	return g.freqHz, g.call("FrequencyHz")
}

func (g *fakeGenerator) AmplitudeDBm() (float64, error) {
	return g.ampDBm, g.call("AmplitudeDBm")
}

func (g *fakeGenerator) RFState() (bool, error) {
	return g.rfOn, g.call("RFState")
}

func (g *fakeGenerator) SetRFOff() error {
	if err := g.call("SetRFOff"); err != nil {
		return err
	}
	g.rfOn = false
	return nil
}

var fixedTime = time.Date(2024, 3, 9, 21, 15, 42, 0, time.UTC)

func fixedClock() func(e *Env) {
	return WithClock(timing.ClockFunc(func() time.Time { return fixedTime }))
}

func testCommon(dir string) Common {
	c := DefaultCommon()
	c.BlockSize = 64
	c.BlockCount = 2
	c.OutDir = dir
	c.Prefix = "test"
	return c
}

func TestObservation_NoGenerator(t *testing.T) {
	dir := t.TempDir()
	c := testCommon(dir)
	c.Direct = false
	c.CenterFreq = 1_420_000_000
	c.Pointing = telescope.Pointing{Alt: 60, Az: 120}

	rx := sdr.NewMock()

	path, err := Observation(c).Run(context.Background(), rx, nil, fixedClock())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := filepath.Join(dir, "test_obs_20240309_211542.npz"); path != want {
		t.Errorf("expected path %s, got %s", want, path)
	}

	rec, err := archive.Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Kind() != KindObservation {
		t.Errorf("expected observation record, got %s", rec.Kind())
	}
	if rec.Tone != nil {
		t.Error("observation record must not carry signal generator state")
	}
	if want := []int{2, 64, 2}; !reflect.DeepEqual(rec.Samples.Shape(), want) {
		t.Errorf("expected shape %v, got %v", want, rec.Samples.Shape())
	}
	if rec.Pointing != c.Pointing {
		t.Errorf("expected pointing %s, got %s", c.Pointing, rec.Pointing)
	}
	if rec.Receiver.CenterFreq != c.CenterFreq {
		t.Errorf("expected center frequency %f, got %f", c.CenterFreq, rec.Receiver.CenterFreq)
	}
}

func TestObservation_IgnoresGenerator(t *testing.T) {
	gen := &fakeGenerator{}

	if _, err := Observation(testCommon(t.TempDir())).Run(context.Background(), sdr.NewMock(), gen, fixedClock()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gen.calls) != 0 {
		t.Errorf("expected no instrument calls, got %v", gen.calls)
	}
}

func TestCalibration(t *testing.T) {
	gen := &fakeGenerator{}
	spec := Calibration(testCommon(t.TempDir()), Tone{FreqMHz: 1420.405, AmpDBm: -40})

	c, err := spec.Execute(context.Background(), sdr.NewMock(), gen, fixedClock())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"ApplySignal", "FrequencyHz", "AmplitudeDBm", "RFState", "SetRFOff"}
	if !reflect.DeepEqual(gen.calls, want) {
		t.Errorf("expected calls %v, got %v", want, gen.calls)
	}
	if gen.rfOn {
		t.Error("expected RF off after the capture")
	}

	rec, err := archive.Read(c.Path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Tone == nil || !rec.Tone.RFOn || rec.Tone.AmplitudeDBm != -40 {
		t.Errorf("expected queried tone state, got %+v", rec.Tone)
	}
	if filepath.Base(c.Path) != "test_cal_20240309_211542.npz" {
		t.Errorf("unexpected path %s", c.Path)
	}
	if c.Size == 0 {
		t.Error("expected archive size")
	}
}

func TestCalibration_Failures(t *testing.T) {
	testCases := []struct {
		name      string
		failOn    string
		wantCalls []string
	}{
		{"apply", "ApplySignal", []string{"ApplySignal", "SetRFOff"}},
		{"query", "AmplitudeDBm", []string{"ApplySignal", "FrequencyHz", "AmplitudeDBm", "SetRFOff"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			gen := &fakeGenerator{failOn: tc.failOn}

			_, err := Calibration(testCommon(dir), Tone{FreqMHz: 1420, AmpDBm: -30}).Run(context.Background(), sdr.NewMock(), gen, fixedClock())

			var commErr *driver.CommunicationError
			if !errors.As(err, &commErr) {
				t.Fatalf("expected CommunicationError, got %v", err)
			}
			if !reflect.DeepEqual(gen.calls, tc.wantCalls) {
				t.Errorf("expected calls %v, got %v", tc.wantCalls, gen.calls)
			}

			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("expected no archive, got %d files", len(entries))
			}
		})
	}

	t.Run("capture", func(t *testing.T) {
		gen := &fakeGenerator{}
		rx := sdr.NewMock()
		rx.CaptureErr = driver.NewAcquisitionError(sdr.MockDevice, errors.New("usb stall"))

		_, err := Calibration(testCommon(t.TempDir()), Tone{FreqMHz: 1420}).Run(context.Background(), rx, gen, fixedClock())

		var acqErr *driver.AcquisitionError
		if !errors.As(err, &acqErr) {
			t.Fatalf("expected AcquisitionError, got %v", err)
		}
		if gen.calls[len(gen.calls)-1] != "SetRFOff" {
			t.Errorf("expected RF off after failure, got %v", gen.calls)
		}
	})
}

func TestCalibration_NoGenerator(t *testing.T) {
	var missing *siggen.Generator

	testCases := []struct {
		name string
		gen  Generator
	}{
		{name: "nil interface", gen: nil},
		{name: "nil instrument", gen: missing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rx := sdr.NewMock()

			_, err := Calibration(testCommon(t.TempDir()), Tone{FreqMHz: 1420}).Run(context.Background(), rx, tc.gen)
			if !errors.Is(err, ErrNoGenerator) {
				t.Fatalf("expected ErrNoGenerator, got %v", err)
			}
			if len(rx.Requests()) != 0 {
				t.Error("receiver must not be touched")
			}
		})
	}
}

func TestAvailable(t *testing.T) {
	var missing *siggen.Generator

	gen, err := siggen.New(siggen.NewSimulator())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testCases := []struct {
		name string
		gen  Generator
		want bool
	}{
		{name: "nil interface", gen: nil, want: false},
		{name: "nil instrument", gen: missing, want: false},
		{name: "connected instrument", gen: gen, want: true},
		{name: "generator without connection state", gen: &fakeGenerator{}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Available(tc.gen); got != tc.want {
				t.Errorf("expected %t, got %t", tc.want, got)
			}
		})
	}
}

func TestSpec_Validate(t *testing.T) {
	valid := testCommon(".")

	testCases := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"observation", Observation(valid), false},
		{"calibration", Calibration(valid, Tone{FreqMHz: 1420}), false},
		{"calibration without tone", Calibration(valid, Tone{}), true},
		{"unknown kind", Spec{Common: valid, Kind: "xyz"}, true},
		{"zero blocks", Observation(func() Common { c := valid; c.BlockCount = 0; return c }()), true},
		{"negative frequency", Observation(func() Common { c := valid; c.CenterFreq = -1; return c }()), true},
		{"prefix with separator", Observation(func() Common { c := valid; c.Prefix = "a/b"; return c }()), true},
		{"bad pointing", Observation(func() Common { c := valid; c.Pointing.Alt = 91; return c }()), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
