package archive

import (
	"archive/zip"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sbinet/npyio/npy"

	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
)

func testReduction(tone *Tone) *Reduction {
	return &Reduction{
		Meta: Meta{
			Receiver: sdr.Settings{SampleRate: 2_560_000, CenterFreq: 1_420_000_000, Gain: 7.5},
			Stamp:    testStamp(),
			Pointing: telescope.Pointing{Alt: 60, Az: 120},
			Observer: telescope.NCH,
			Tone:     tone,
			NBlocks:  8,
			NSamples: 4,
		},
		PSD:   []float64{0.5, 1.25, 3, 0.125},
		Std:   0.0625,
		Freqs: []float64{1_418_720_000, 1_419_360_000, 1_420_000_000, 1_420_640_000},
	}
}

func TestReduction_RoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		tone *Tone
		kind Kind
	}{
		{"observation", nil, KindObservation},
		{"calibration", &Tone{FrequencyHz: 1_420_400_000, AmplitudeDBm: -40, RFOn: true}, KindCalibration},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			want := testReduction(tc.tone)
			path := filepath.Join(t.TempDir(), "capture_psd.npz")

			if err := WriteReduction(path, want); err != nil {
				t.Fatalf("WriteReduction() error = %v", err)
			}

			got, err := ReadReduction(path)
			if err != nil {
				t.Fatalf("ReadReduction() error = %v", err)
			}

			if !reflect.DeepEqual(got.PSD, want.PSD) || !reflect.DeepEqual(got.Freqs, want.Freqs) || got.Std != want.Std {
				t.Errorf("spectrum = %v %v %v, want %v %v %v", got.PSD, got.Freqs, got.Std, want.PSD, want.Freqs, want.Std)
			}
			if got.Receiver != want.Receiver || got.Pointing != want.Pointing || got.Observer != want.Observer {
				t.Errorf("metadata = %+v, want %+v", got.Meta, want.Meta)
			}
			if got.NBlocks != want.NBlocks || got.NSamples != want.NSamples {
				t.Errorf("shape = %d x %d, want %d x %d", got.NBlocks, got.NSamples, want.NBlocks, want.NSamples)
			}
			if !got.Stamp.Wall.Equal(want.Stamp.Wall) {
				t.Errorf("Wall = %v, want %v", got.Stamp.Wall, want.Stamp.Wall)
			}
			if !reflect.DeepEqual(got.Tone, want.Tone) || got.Kind() != tc.kind {
				t.Errorf("tone = %+v kind %s, want %+v kind %s", got.Tone, got.Kind(), want.Tone, tc.kind)
			}

			fields, err := ReadFields(path)
			if err != nil {
				t.Fatalf("ReadFields() error = %v", err)
			}
			if !fields.IsReduction() {
				t.Error("IsReduction() = false for a reduced archive")
			}
			if _, ok := fields[KeyData]; ok {
				t.Error("reduced archive stores raw samples")
			}
			if _, err = Read(path); err == nil || !strings.Contains(err.Error(), KeyData) {
				t.Errorf("Read() of a reduced archive error = %v, want missing %s", err, KeyData)
			}
		})
	}
}

func TestReduction_EntryShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture_psd.npz")
	if err := WriteReduction(path, testReduction(nil)); err != nil {
		t.Fatalf("WriteReduction() error = %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("zip.OpenReader() error = %v", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %s: %v", f.Name, err)
		}
		r, err := npy.NewReader(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("reading %s header: %v", f.Name, err)
		}

		shape := r.Header.Descr.Shape
		switch f.Name {
		case KeyPSD + npyExt, KeyFreqs + npyExt:
			if !reflect.DeepEqual(shape, []int{4}) || r.Header.Descr.Type != "<f8" {
				t.Errorf("%s = %s %v, want <f8 (4,)", f.Name, r.Header.Descr.Type, shape)
			}
		default:
			if len(shape) != 0 {
				t.Errorf("%s shape = %v, want a scalar", f.Name, shape)
			}
		}
	}
}

func TestReduction_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(r *Reduction)
		want   string
	}{
		{"empty spectrum", func(r *Reduction) { r.PSD, r.Freqs = nil, nil }, "empty spectrum"},
		{"axis mismatch", func(r *Reduction) { r.Freqs = r.Freqs[:2] }, "2 frequencies for 4 bins"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := testReduction(nil)
			tc.mutate(r)

			path := filepath.Join(t.TempDir(), "capture_psd.npz")
			err := WriteReduction(path, r)

			var writeErr *WriteError
			if !errors.As(err, &writeErr) || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("WriteReduction() error = %v, want WriteError containing %q", err, tc.want)
			}
		})
	}

	capture := filepath.Join(t.TempDir(), "capture.npz")
	rec := &Record{
		Samples:  testBuffer(16, 2, sdr.ChannelsIQ),
		Receiver: sdr.Settings{SampleRate: 2_560_000},
		Stamp:    testStamp(),
		Observer: telescope.NCH,
	}
	if err := Write(capture, rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := ReadReduction(capture); err == nil || !strings.Contains(err.Error(), KeyPSD) {
		t.Errorf("ReadReduction() of a capture error = %v, want missing %s", err, KeyPSD)
	}
}
