package siggen

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// DefaultIdentity is the *IDN? response of the simulated instrument
const DefaultIdentity = "Agilent Technologies,N9310A,CN0000SIM,A.01.10"

var errNoResponse = errors.New("no pending response")

// Simulator is an in-memory transport speaking the N9310A SCPI subset used by
// Generator. It backs the simulation mode and the tests.
type Simulator struct {
	mu sync.Mutex

	identity string
	freqHz   float64
	ampDBm   float64
	rfOn     bool
	pending  string
	commands []string
	failOn   map[string]error
}

func NewSimulator() *Simulator {
	return &Simulator{
		identity: DefaultIdentity,
		freqHz:   1_000_000_000,
		ampDBm:   -20,
		failOn:   map[string]error{},
	}
}

// SetIdentity overrides the *IDN? response
func (s *Simulator) SetIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = identity
}

// FailOn makes every write starting with prefix fail with err
func (s *Simulator) FailOn(prefix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failOn[prefix] = err
}

// Commands returns every command written so far
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

// RFOn reports the simulated RF output state
func (s *Simulator) RFOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rfOn
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := strings.TrimSpace(string(p))
	for prefix, err := range s.failOn {
		if strings.HasPrefix(cmd, prefix) {
			return 0, err
		}
	}

	s.commands = append(s.commands, cmd)

	if err := s.exec(cmd); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == "" {
		return 0, errNoResponse
	}

	n := copy(p, s.pending+"\n")
	s.pending = ""

	return n, nil
}

func (s *Simulator) Close() error {
	return nil
}

func (s *Simulator) exec(cmd string) error {
	name, arg, _ := strings.Cut(cmd, " ")
	fields := strings.Fields(arg)

	switch name {
	case "*IDN?":
		s.pending = s.identity
	case "FREQ:CW?":
		s.pending = strconv.FormatFloat(s.freqHz, 'f', -1, 64) + " Hz"
	case "AMPL:CW?":
		s.pending = strconv.FormatFloat(s.ampDBm, 'f', -1, 64) + " dBm"
	case "RFO:STAT?":
		s.pending = "0"
		if s.rfOn {
			s.pending = "1"
		}
	case "FREQ:CW":
		if len(fields) != 2 || !strings.EqualFold(fields[1], "MHz") {
			return fmt.Errorf("simulator: malformed command %q", cmd)
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("simulator: %w", err)
		}
		s.freqHz = v * 1e6
	case "AMPL:CW":
		if len(fields) != 2 {
			return fmt.Errorf("simulator: malformed command %q", cmd)
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return fmt.Errorf("simulator: %w", err)
		}
		s.ampDBm = v
	case "RFO:STAT":
		switch arg {
		case "ON":
			s.rfOn = true
		case "OFF":
			s.rfOn = false
		default:
			return fmt.Errorf("simulator: malformed command %q", cmd)
		}
	default:
		return fmt.Errorf("simulator: unknown command %q", cmd)
	}

	return nil
}

var _ io.ReadWriteCloser = (*Simulator)(nil)
