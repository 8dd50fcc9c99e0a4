package siggen

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roman-kulish/radio-telescope/internal/driver"
)

const (
	Device = "N9310A"

	// DefaultPath is the USBTMC character device the instrument enumerates as
	DefaultPath = "/dev/usbtmc0"

	// SettleDelay follows every write. The instrument's command buffer
	// overruns on back-to-back writes, so this is not tunable.
	SettleDelay = 300 * time.Millisecond

	readBufferSize = 4096
)

var unitMultiplier = map[string]float64{
	"GHZ": 1e9,
	"MHZ": 1e6,
	"KHZ": 1e3,
	"HZ":  1,
}

// WithLogger sets the logger for the generator
func WithLogger(logger *slog.Logger) func(g *Generator) {
	return func(g *Generator) {
		g.logger = logger.With(slog.String("device", Device))
	}
}

// Generator is a synchronous SCPI request/response façade over an Agilent
// (Keysight) N9310A signal generator. It is not safe for concurrent use by
// multiple queue runs; the mutex only keeps request/response pairs together.
type Generator struct {
	mu       sync.Mutex
	rw       io.ReadWriter
	identity string

	sleep  func(time.Duration)
	logger *slog.Logger
}

// Open opens the USBTMC device node and validates the instrument identity
func Open(path string, options ...func(g *Generator)) (*Generator, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, driver.NewCommunicationError(Device, "open "+path, err)
	}

	g, err := New(f, options...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return g, nil
}

// New wraps an open transport and validates the instrument identity.
// IdentityMismatchError is returned when the instrument is not an N9310A or
// does not answer the identity query; in the latter case it wraps the
// CommunicationError.
func New(rw io.ReadWriter, options ...func(g *Generator)) (*Generator, error) {
	g := Generator{
		rw:     rw,
		sleep:  time.Sleep,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&g)
	}

	resp, err := g.query("*IDN?")
	if err != nil {
		return nil, &driver.IdentityMismatchError{Expected: Device, Err: err}
	}
	if !strings.Contains(resp, Device) {
		return nil, &driver.IdentityMismatchError{Expected: Device, Got: resp}
	}

	g.identity = resp
	g.logger.Info("connected", slog.String("identity", resp))

	return &g, nil
}

// Identity returns the *IDN? response captured at connection time
func (g *Generator) Identity() string {
	return g.identity
}

// Connected reports whether g holds an instrument transport. It is safe to
// call on a nil *Generator.
func (g *Generator) Connected() bool {
	return g != nil && g.rw != nil
}

// Close closes the transport when it is closable
func (g *Generator) Close() error {
	if cl, ok := g.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// SetFrequencyMHz sets the CW frequency
func (g *Generator) SetFrequencyMHz(mhz float64) error {
	return g.write(fmt.Sprintf("FREQ:CW %s MHz", formatFloat(mhz)))
}

// FrequencyHz queries the CW frequency, normalized to Hz
func (g *Generator) FrequencyHz() (float64, error) {
	resp, err := g.query("FREQ:CW?")
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(resp)
	if len(fields) == 0 {
		return 0, driver.NewCommunicationError(Device, "FREQ:CW?", fmt.Errorf("empty response"))
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, driver.NewCommunicationError(Device, "FREQ:CW?", fmt.Errorf("invalid frequency %q: %w", resp, err))
	}

	if len(fields) >= 2 {
		if m, ok := unitMultiplier[strings.ToUpper(fields[1])]; ok {
			value *= m
		}
	}

	return value, nil
}

// SetAmplitudeDBm sets the CW amplitude
func (g *Generator) SetAmplitudeDBm(dbm float64) error {
	return g.write(fmt.Sprintf("AMPL:CW %s dBm", formatFloat(dbm)))
}

// AmplitudeDBm queries the CW amplitude
func (g *Generator) AmplitudeDBm() (float64, error) {
	resp, err := g.query("AMPL:CW?")
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(resp)
	if len(fields) == 0 {
		return 0, driver.NewCommunicationError(Device, "AMPL:CW?", fmt.Errorf("empty response"))
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, driver.NewCommunicationError(Device, "AMPL:CW?", fmt.Errorf("invalid amplitude %q: %w", resp, err))
	}

	return value, nil
}

func (g *Generator) SetRFOn() error {
	return g.write("RFO:STAT ON")
}

func (g *Generator) SetRFOff() error {
	return g.write("RFO:STAT OFF")
}

// RFState queries whether the RF output is enabled
func (g *Generator) RFState() (bool, error) {
	resp, err := g.query("RFO:STAT?")
	if err != nil {
		return false, err
	}

	switch {
	case resp == "":
		return false, driver.NewCommunicationError(Device, "RFO:STAT?", fmt.Errorf("empty response"))
	case strings.EqualFold(resp, "ON"):
		return true, nil
	case strings.EqualFold(resp, "OFF"):
		return false, nil
	}

	state, err := strconv.Atoi(resp[:1])
	if err != nil {
		return false, driver.NewCommunicationError(Device, "RFO:STAT?", fmt.Errorf("invalid RF state %q: %w", resp, err))
	}

	return state != 0, nil
}

// ApplySignal programs a tone: frequency, then amplitude, then RF state.
// It stops at the first failed command.
func (g *Generator) ApplySignal(freqMHz, ampDBm float64, rfOn bool) error {
	if err := g.SetFrequencyMHz(freqMHz); err != nil {
		return err
	}
	if err := g.SetAmplitudeDBm(ampDBm); err != nil {
		return err
	}
	if rfOn {
		return g.SetRFOn()
	}
	return g.SetRFOff()
}

func (g *Generator) write(cmd string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.send(cmd)
}

func (g *Generator) query(cmd string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.send(cmd); err != nil {
		return "", err
	}

	buf := make([]byte, readBufferSize)
	n, err := g.rw.Read(buf)
	if err != nil && n == 0 {
		return "", driver.NewCommunicationError(Device, cmd, err)
	}

	resp := strings.TrimSpace(string(buf[:n]))
	g.logger.Debug("query", slog.String("cmd", cmd), slog.String("response", resp))

	return resp, nil
}

// send writes a single command and waits for the instrument to settle.
// The caller holds the lock.
func (g *Generator) send(cmd string) error {
	if _, err := io.WriteString(g.rw, cmd); err != nil {
		return driver.NewCommunicationError(Device, cmd, err)
	}

	g.sleep(SettleDelay)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
