package sdr

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/roman-kulish/radio-telescope/internal/driver"
)

func TestCaptureClean(t *testing.T) {
	testCases := []struct {
		name      string
		direct    bool
		blockSize int
		blocks    int
		wantShape []int
	}{
		{"I/Q", false, 256, 4, []int{4, 256, 2}},
		{"direct", true, 128, 3, []int{3, 128}},
		{"single block", false, 64, 1, []int{1, 64, 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rx := NewMock()
			rx.ToneOffset = 100_000
			if err := Configure(rx, Settings{SampleRate: 2_400_000, CenterFreq: 1_420_000_000, Direct: tc.direct}); err != nil {
				t.Fatalf("configure: %v", err)
			}

			buf, err := CaptureClean(context.Background(), rx, tc.blockSize, tc.blocks)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(buf.Shape(), tc.wantShape) {
				t.Errorf("expected shape %v, got %v", tc.wantShape, buf.Shape())
			}

			reqs := rx.Requests()
			if len(reqs) != 1 {
				t.Fatalf("expected 1 capture request, got %d", len(reqs))
			}
			if reqs[0].BlockCount != tc.blocks+1 || reqs[0].BlockSize != tc.blockSize {
				t.Errorf("expected request for %d x %d, got %d x %d", tc.blocks+1, tc.blockSize, reqs[0].BlockCount, reqs[0].BlockSize)
			}

			for i := 0; i < buf.BlockCount; i++ {
				stale := true
				for _, v := range buf.Block(i) {
					if v != MockStaleValue {
						stale = false
						break
					}
				}
				if stale {
					t.Errorf("block %d holds stale samples", i)
				}
			}
		})
	}
}

func TestCaptureClean_Errors(t *testing.T) {
	t.Run("short capture", func(t *testing.T) {
		rx := NewMock()
		rx.ShortBy = 1

		_, err := CaptureClean(context.Background(), rx, 64, 2)
		if !errors.Is(err, ErrShortCapture) {
			t.Fatalf("expected ErrShortCapture, got %v", err)
		}

		var acqErr *driver.AcquisitionError
		if !errors.As(err, &acqErr) {
			t.Errorf("expected AcquisitionError, got %T", err)
		}
	})

	t.Run("primitive failure is not retried", func(t *testing.T) {
		rx := NewMock()
		rx.CaptureErr = driver.NewAcquisitionError(MockDevice, errors.New("dropped samples"))

		_, err := CaptureClean(context.Background(), rx, 64, 2)

		var acqErr *driver.AcquisitionError
		if !errors.As(err, &acqErr) {
			t.Fatalf("expected AcquisitionError, got %v", err)
		}
		if n := len(rx.Requests()); n != 1 {
			t.Errorf("expected a single attempt, got %d", n)
		}
	})

	t.Run("invalid size", func(t *testing.T) {
		_, err := CaptureClean(context.Background(), NewMock(), 0, 2)

		var cfgErr *driver.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := CaptureClean(ctx, NewMock(), 64, 2); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestConfigure(t *testing.T) {
	rx := NewMock()

	if err := Configure(rx, Settings{SampleRate: 3_200_000, CenterFreq: 1_420_000_000, Gain: 20, Direct: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Settings{SampleRate: 3_200_000, CenterFreq: 0, Gain: 20, Direct: true}
	if got := rx.State(); got != want {
		t.Errorf("expected state %+v, got %+v", want, got)
	}

	if err := Configure(rx, Settings{SampleRate: 0}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestBuffer_Validate(t *testing.T) {
	b := NewBuffer(16, 2, ChannelsIQ)
	if err := b.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	b.Samples = b.Samples[:10]
	if err := b.Validate(); err == nil {
		t.Error("expected error for truncated samples")
	}
}
