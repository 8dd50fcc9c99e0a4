package sdr

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/roman-kulish/radio-telescope/internal/driver"
)

const (
	MockDevice = "MOCK-SDR"

	// MockStaleValue fills the first block of every mock capture, standing in
	// for the samples left in the ring buffer before the request.
	MockStaleValue int8 = 127

	mockToneAmplitude  = 40
	mockNoiseAmplitude = 8
)

// Request records a single call to the acquisition primitive
type Request struct {
	Settings   Settings
	BlockSize  int
	BlockCount int
}

// Mock is an in-memory receiver producing a noisy tone. It backs the
// simulation mode and the tests.
type Mock struct {
	mu sync.Mutex

	state    Settings
	requests []Request
	rnd      *rand.Rand

	// ToneOffset is the tone position relative to the LO in Hz
	ToneOffset float64

	// CaptureErr, when set, is returned by every capture
	CaptureErr error

	// ShortBy drops the given number of blocks from every capture
	ShortBy int
}

func NewMock() *Mock {
	return &Mock{
		state: Settings{SampleRate: 2_400_000},
		rnd:   rand.New(rand.NewSource(1)),
	}
}

func (m *Mock) Device() string {
	return MockDevice
}

func (m *Mock) SetDirectSampling(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Direct = enabled
	return nil
}

func (m *Mock) SetCenterFreq(hz float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.CenterFreq = hz
	return nil
}

func (m *Mock) SetSampleRate(hz float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.SampleRate = hz
	return nil
}

func (m *Mock) SetGain(db float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Gain = db
	return nil
}

func (m *Mock) State() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Requests returns every capture request seen so far
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

func (m *Mock) Capture(ctx context.Context, blockSize, blockCount int) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, Request{Settings: m.state, BlockSize: blockSize, BlockCount: blockCount})

	if err := ctx.Err(); err != nil {
		return nil, driver.NewAcquisitionError(MockDevice, err)
	}
	if m.CaptureErr != nil {
		return nil, m.CaptureErr
	}

	count := blockCount - m.ShortBy
	if count < 0 {
		count = 0
	}

	channels := ChannelsIQ
	if m.state.Direct {
		channels = ChannelsDirect
	}

	buf := NewBuffer(blockSize, count, channels)
	if count == 0 {
		return buf, nil
	}

	for i := range buf.Block(0) {
		buf.Samples[i] = MockStaleValue
	}

	step := 2 * math.Pi * m.ToneOffset / m.state.SampleRate
	for b := 1; b < count; b++ {
		block := buf.Block(b)
		for n := 0; n < blockSize; n++ {
			phase := step * float64((b*blockSize)+n)
			if channels == ChannelsDirect {
				block[n] = m.sample(math.Cos(phase))
				continue
			}
			block[2*n] = m.sample(math.Cos(phase))
			block[2*n+1] = m.sample(math.Sin(phase))
		}
	}

	return buf, nil
}

func (m *Mock) sample(v float64) int8 {
	noise := (m.rnd.Float64()*2 - 1) * mockNoiseAmplitude
	return int8(math.Round(v*mockToneAmplitude + noise))
}
