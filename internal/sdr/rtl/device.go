package rtl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/roman-kulish/radio-telescope/internal/driver"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
)

const (
	Runtime = "rtl_sdr"
	Device  = "RTL-SDR"

	// bytesPerSample is one unsigned byte for I and one for Q
	bytesPerSample = 2
)

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Receiver) {
	return func(d *Receiver) {
		d.logger = logger.With(
			slog.String("device", Device),
			slog.Int("deviceIndex", d.config.DeviceIndex),
		)
	}
}

// Receiver drives an RTL-SDR dongle through the `rtl_sdr` tool. The settings
// are applied on every capture, since each capture spawns a new process.
type Receiver struct {
	binPath string
	config  Config

	mu    sync.Mutex
	state sdr.Settings

	logger *slog.Logger
}

// New creates a new RTL-SDR receiver with a discard logger
func New(config Config, options ...func(d *Receiver)) (*Receiver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	binPath, err := driver.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	d := Receiver{
		binPath: binPath,
		config:  config,
		state:   sdr.Settings{SampleRate: 2_400_000},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d, nil
}

func (d *Receiver) Device() string {
	return Device
}

func (d *Receiver) SetDirectSampling(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Direct = enabled
	return nil
}

func (d *Receiver) SetCenterFreq(hz float64) error {
	if hz < 0 {
		return driver.NewConfigError(fmt.Sprintf("rtl: center frequency must not be negative: %0.0f", hz))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.CenterFreq = hz
	return nil
}

func (d *Receiver) SetSampleRate(hz float64) error {
	if hz < SampleRateMin || hz > SampleRateMax {
		return driver.NewConfigError(fmt.Sprintf("rtl: sample rate must be between %d and %d Hz: %0.0f given", SampleRateMin, SampleRateMax, hz))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.SampleRate = hz
	return nil
}

func (d *Receiver) SetGain(db float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state.Gain = db
	return nil
}

func (d *Receiver) State() sdr.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// Capture runs `rtl_sdr` for blockCount*blockSize samples and decodes its
// output. A configured capture timeout bounds the whole acquisition.
func (d *Receiver) Capture(ctx context.Context, blockSize, blockCount int) (buf *sdr.Buffer, err error) {
	state := d.State()

	args, err := d.config.Args(state, blockSize*blockCount)
	if err != nil {
		return nil, driver.NewConfigError(err.Error())
	}

	if d.config.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.CaptureTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.binPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	d.logger.Debug("starting capture", slog.Any("args", args))

	if err = cmd.Start(); err != nil {
		return nil, driver.NewCommunicationError(Device, Runtime, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.handleStderr(stderr)
	}()

	raw := make([]byte, blockSize*blockCount*bytesPerSample)
	_, readErr := io.ReadFull(stdout, raw)

	wg.Wait()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, driver.NewAcquisitionError(Device, ctxErr)
	}
	if readErr != nil {
		return nil, driver.NewAcquisitionError(Device, fmt.Errorf("%w: %w", sdr.ErrShortCapture, readErr))
	}
	if waitErr != nil {
		return nil, driver.NewAcquisitionError(Device, fmt.Errorf("command exited with error: %w", waitErr))
	}

	return decode(raw, blockSize, blockCount, state.Direct), nil
}

// handleStderr reads from stderr and logs device messages
func (d *Receiver) handleStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		d.logger.Debug(fmt.Sprintf("%s >> %s", Runtime, line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		d.logger.Warn("error reading stderr", slog.String("error", err.Error()))
	}
}

// decode converts interleaved unsigned I/Q bytes to signed samples. In direct
// sampling mode only the Q branch carries the signal.
func decode(raw []byte, blockSize, blockCount int, direct bool) *sdr.Buffer {
	if direct {
		buf := sdr.NewBuffer(blockSize, blockCount, sdr.ChannelsDirect)
		for i := range buf.Samples {
			buf.Samples[i] = int8(raw[2*i+1] ^ 0x80)
		}
		return buf
	}

	buf := sdr.NewBuffer(blockSize, blockCount, sdr.ChannelsIQ)
	for i := range buf.Samples {
		buf.Samples[i] = int8(raw[i] ^ 0x80)
	}
	return buf
}
