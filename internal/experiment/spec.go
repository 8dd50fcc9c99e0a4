package experiment

import (
	"fmt"
	"strings"

	"github.com/roman-kulish/radio-telescope/internal/archive"
	"github.com/roman-kulish/radio-telescope/internal/sdr"
	"github.com/roman-kulish/radio-telescope/internal/telescope"
)

const (
	KindCalibration = archive.KindCalibration
	KindObservation = archive.KindObservation

	DefaultBlockSize  = 2048
	DefaultBlockCount = 1
	DefaultSampleRate = 2_560_000
	DefaultPrefix     = "exp"
	DefaultOutDir     = "."
)

// Common holds the fields shared by every experiment kind
type Common struct {
	BlockSize  int     `yaml:"blockSize" json:"blockSize"`   // Samples per block
	BlockCount int     `yaml:"blockCount" json:"blockCount"` // Clean blocks to capture
	SampleRate float64 `yaml:"sampleRate" json:"sampleRate"` // Hz
	CenterFreq float64 `yaml:"centerFreq" json:"centerFreq"` // Hz; ignored in direct-sampling mode
	Gain       float64 `yaml:"gain" json:"gain"`             // dB
	Direct     bool    `yaml:"direct" json:"direct"`         // Direct sampling instead of tuned I/Q

	OutDir string `yaml:"outDir" json:"outDir"` // Archive directory, created on demand
	Prefix string `yaml:"prefix" json:"prefix"` // Archive filename prefix

	Pointing telescope.Pointing `yaml:"pointing" json:"pointing"`
	Observer telescope.Location `yaml:"observer" json:"observer"`
}

// DefaultCommon returns the defaults used when a plan leaves a field out
func DefaultCommon() Common {
	return Common{
		BlockSize:  DefaultBlockSize,
		BlockCount: DefaultBlockCount,
		SampleRate: DefaultSampleRate,
		Direct:     true,
		OutDir:     DefaultOutDir,
		Prefix:     DefaultPrefix,
		Observer:   telescope.NCH,
	}
}

// Tone is the requested signal generator setting of a calibration
type Tone struct {
	FreqMHz float64 `yaml:"freqMHz" json:"freqMHz"` // CW frequency in MHz
	AmpDBm  float64 `yaml:"ampDBm" json:"ampDBm"`   // CW amplitude in dBm
}

func (t Tone) String() string {
	return fmt.Sprintf("%g MHz, %g dBm", t.FreqMHz, t.AmpDBm)
}

// Spec is a complete, self-contained description of one capture. Kind selects
// the variant; Tone is meaningful for calibrations only. Specs are values and
// are never modified once built.
type Spec struct {
	Common
	Kind archive.Kind
	Tone Tone
}

// Observation builds a sky observation spec
func Observation(c Common) Spec {
	return Spec{Common: c, Kind: KindObservation}
}

// Calibration builds a calibration spec driving the signal generator
func Calibration(c Common, tone Tone) Spec {
	return Spec{Common: c, Kind: KindCalibration, Tone: tone}
}

// Settings returns the receiver configuration of the experiment
func (s Spec) Settings() sdr.Settings {
	return sdr.Settings{
		SampleRate: s.SampleRate,
		CenterFreq: s.CenterFreq,
		Gain:       s.Gain,
		Direct:     s.Direct,
	}
}

// NeedsGenerator reports whether running the experiment requires an instrument
func (s Spec) NeedsGenerator() bool {
	return s.Kind == KindCalibration
}

func (s Spec) Validate() error {
	switch s.Kind {
	case KindObservation:
	case KindCalibration:
		if s.Tone.FreqMHz <= 0 {
			return fmt.Errorf("experiment.Spec: tone frequency must be positive: %g MHz", s.Tone.FreqMHz)
		}
	default:
		return fmt.Errorf("experiment.Spec: unknown kind %q", s.Kind)
	}

	if s.BlockSize <= 0 {
		return fmt.Errorf("experiment.Spec: block size must be positive: %d", s.BlockSize)
	}
	if s.BlockCount <= 0 {
		return fmt.Errorf("experiment.Spec: block count must be positive: %d", s.BlockCount)
	}
	if err := s.Settings().Validate(); err != nil {
		return fmt.Errorf("experiment.Spec: %w", err)
	}
	if s.Prefix == "" {
		return fmt.Errorf("experiment.Spec: prefix must not be empty")
	}
	if strings.ContainsAny(s.Prefix, `/\`) {
		return fmt.Errorf("experiment.Spec: prefix must not contain path separators: %q", s.Prefix)
	}
	if err := s.Pointing.Validate(); err != nil {
		return fmt.Errorf("experiment.Spec: %w", err)
	}
	if err := s.Observer.Validate(); err != nil {
		return fmt.Errorf("experiment.Spec: %w", err)
	}

	return nil
}

// Label is the human-readable variant name
func (s Spec) Label() string {
	switch s.Kind {
	case KindCalibration:
		return "calibration"
	case KindObservation:
		return "observation"
	}
	return string(s.Kind)
}
