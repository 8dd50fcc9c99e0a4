// Package plan decodes queue plan files. A plan is a YAML document with a
// defaults block merged under every entry and an ordered list of experiments:
//
//	defaults:
//	  outDir: data/lab2
//	  blockSize: 32768
//	  blockCount: 10
//	  direct: false
//	  centerFreq: 1420e6
//	  sampleRate: 2.56e6
//	experiments:
//	  - kind: obs
//	    prefix: BASE-PRE
//	  - kind: cal
//	    prefix: TONE
//	    tone: {freqMHz: 1420.7, ampDBm: -40}
//	  - kind: sweep
//	    prefix: COLD
//	    tone: {freqMHz: 1420.7}
//	    sweep: {startDBm: -90, stopDBm: -30, stepDBm: 4, baseline: true}
package plan

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radio-telescope/internal/experiment"
)

const (
	KindObservation Kind = "obs"
	KindCalibration Kind = "cal"
	KindSweep       Kind = "sweep"

	maxRepeat = 10_000
	maxSteps  = 10_000
)

// Kind is the entry type of a plan
type Kind string

func (k Kind) String() string {
	return string(k)
}

func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(value.Value)) {
	case "obs", "observation":
		*k = KindObservation
	case "cal", "calibration":
		*k = KindCalibration
	case "sweep":
		*k = KindSweep
	default:
		return fmt.Errorf("plan.Kind: unknown kind %q at line %d", value.Value, value.Line)
	}
	return nil
}

func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// Sweep steps the tone of a calibration entry through a range. Exactly one
// axis must be set: frequency (MHz) or amplitude (dBm). Both ends are
// inclusive.
type Sweep struct {
	StartMHz float64 `yaml:"startMHz"`
	StopMHz  float64 `yaml:"stopMHz"`
	StepMHz  float64 `yaml:"stepMHz"`

	StartDBm float64 `yaml:"startDBm"`
	StopDBm  float64 `yaml:"stopDBm"`
	StepDBm  float64 `yaml:"stepDBm"`

	// Baseline follows every tone step with an observation of the same
	// pointing, so receiver drift can be tracked between steps.
	Baseline bool `yaml:"baseline"`
}

func (s *Sweep) Validate() error {
	freq, amp := s.StepMHz != 0, s.StepDBm != 0
	switch {
	case freq && amp:
		return fmt.Errorf("plan.Sweep: frequency and amplitude steps are mutually exclusive")
	case freq:
		return validateRange(s.StartMHz, s.StopMHz, s.StepMHz, "MHz")
	case amp:
		return validateRange(s.StartDBm, s.StopDBm, s.StepDBm, "dBm")
	}
	return fmt.Errorf("plan.Sweep: a frequency or amplitude step is required")
}

func validateRange(start, stop, step float64, unit string) error {
	if step < 0 {
		return fmt.Errorf("plan.Sweep: step must be positive: %g %s", step, unit)
	}
	if stop < start {
		return fmt.Errorf("plan.Sweep: stop must not be below start: %g < %g %s", stop, start, unit)
	}
	if n := steps(start, stop, step); n > maxSteps {
		return fmt.Errorf("plan.Sweep: too many steps: %d", n)
	}
	return nil
}

// steps returns the number of values in [start, stop] spaced by step. Half a
// step of slack absorbs floating point error at the stop value.
func steps(start, stop, step float64) int {
	return int(math.Ceil((stop - start + step/2) / step))
}

// Entry is one item of the experiments list, merged over the defaults
type Entry struct {
	experiment.Common `yaml:",inline"`

	Kind   Kind            `yaml:"kind"`
	Tone   experiment.Tone `yaml:"tone"`
	Repeat int             `yaml:"repeat"`
	Sweep  *Sweep          `yaml:"sweep"`
}

// Specs expands the entry into the experiments it stands for
func (e *Entry) Specs() ([]experiment.Spec, error) {
	if e.Repeat < 0 || e.Repeat > maxRepeat {
		return nil, fmt.Errorf("plan.Entry: repeat must be within [0, %d]: %d given", maxRepeat, e.Repeat)
	}

	var once []experiment.Spec
	switch e.Kind {
	case KindObservation:
		once = append(once, experiment.Observation(e.Common))

	case KindCalibration:
		once = append(once, experiment.Calibration(e.Common, e.Tone))

	case KindSweep:
		if e.Sweep == nil {
			return nil, fmt.Errorf("plan.Entry: sweep entry without a sweep block")
		}
		if err := e.Sweep.Validate(); err != nil {
			return nil, err
		}
		once = e.expandSweep()

	case "":
		return nil, fmt.Errorf("plan.Entry: kind is required")

	default:
		return nil, fmt.Errorf("plan.Entry: unknown kind %q", e.Kind)
	}

	for _, spec := range once {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}

	n := max(e.Repeat, 1)
	specs := make([]experiment.Spec, 0, n*len(once))
	for i := 0; i < n; i++ {
		specs = append(specs, once...)
	}
	return specs, nil
}

func (e *Entry) expandSweep() []experiment.Spec {
	s := e.Sweep

	start, stop, step := s.StartMHz, s.StopMHz, s.StepMHz
	byFreq := s.StepMHz != 0
	if !byFreq {
		start, stop, step = s.StartDBm, s.StopDBm, s.StepDBm
	}

	n := steps(start, stop, step)
	specs := make([]experiment.Spec, 0, 2*n)
	for i := 0; i < n; i++ {
		v := start + float64(i)*step

		tone := e.Tone
		if byFreq {
			tone.FreqMHz = v
		} else {
			tone.AmpDBm = v
		}

		c := e.Common
		c.Prefix = e.Prefix + "-TONE-" + strconv.FormatFloat(v, 'f', -1, 64)
		specs = append(specs, experiment.Calibration(c, tone))

		if s.Baseline {
			c.Prefix = e.Prefix + "-BASE-" + strconv.FormatFloat(v, 'f', -1, 64)
			specs = append(specs, experiment.Observation(c))
		}
	}
	return specs
}

// EntryError reports a plan entry that could not be expanded
type EntryError struct {
	Index int // Position in the experiments list, starting at 1
	Line  int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("plan entry %d (line %d): %v", e.Index, e.Line, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

type document struct {
	Defaults    yaml.Node   `yaml:"defaults"`
	Experiments []yaml.Node `yaml:"experiments"`
}

// Parse decodes a plan and expands it into the ordered experiment list.
// base supplies the values of fields neither the defaults block nor an
// entry sets.
func Parse(r io.Reader, base experiment.Common) ([]experiment.Spec, error) {
	var doc document

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("plan is empty")
		}
		return nil, fmt.Errorf("decoding plan: %w", err)
	}

	defaults := base
	if !doc.Defaults.IsZero() {
		if err := doc.Defaults.Decode(&defaults); err != nil {
			return nil, fmt.Errorf("decoding defaults: %w", err)
		}
	}

	if len(doc.Experiments) == 0 {
		return nil, fmt.Errorf("plan has no experiments")
	}

	var specs []experiment.Spec
	for i, node := range doc.Experiments {
		entry := Entry{Common: defaults}
		if err := node.Decode(&entry); err != nil {
			return nil, &EntryError{Index: i + 1, Line: node.Line, Err: err}
		}

		expanded, err := entry.Specs()
		if err != nil {
			return nil, &EntryError{Index: i + 1, Line: node.Line, Err: err}
		}
		specs = append(specs, expanded...)
	}

	return specs, nil
}

// Load reads and expands the plan file at path
func Load(path string, base experiment.Common) ([]experiment.Spec, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return Parse(bytes.NewReader(p), base)
}
