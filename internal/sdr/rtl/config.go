package rtl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roman-kulish/radio-telescope/internal/sdr"
)

const (
	SampleRateMin = 225_001
	SampleRateMax = 3_200_000

	// directSamplingQ selects the Q-branch ADC input, which is the one wired
	// to the antenna port on RTL-SDR v3 dongles
	directSamplingQ = 2
)

// Config is the static part of the `rtl_sdr` invocation
type Config struct {
	DeviceIndex    int           `yaml:"deviceIndex" json:"deviceIndex" mapstructure:"deviceIndex"`          // -d device_index (default: 0)
	PPMError       int           `yaml:"ppmError" json:"ppmError" mapstructure:"ppmError"`                   // -p ppm_error (default: 0)
	CaptureTimeout time.Duration `yaml:"captureTimeout" json:"captureTimeout" mapstructure:"captureTimeout"` // 0 waits indefinitely
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl.Config: device index must not be negative: %d", c.DeviceIndex)
	}
	if c.CaptureTimeout < 0 {
		return fmt.Errorf("rtl.Config: capture timeout must not be negative: %s", c.CaptureTimeout)
	}
	return nil
}

// Args returns the command line arguments for `rtl_sdr` reading numSamples
// samples to stdout. See `man rtl_sdr` for more information:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html
func (c *Config) Args(s sdr.Settings, numSamples int) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if s.SampleRate < SampleRateMin || s.SampleRate > SampleRateMax {
		return nil, fmt.Errorf("rtl.Config: sample rate must be between %d and %d Hz: %0.0f given", SampleRateMin, SampleRateMax, s.SampleRate)
	}
	if numSamples <= 0 {
		return nil, fmt.Errorf("rtl.Config: number of samples must be positive: %d", numSamples)
	}

	args := []string{
		"-d", strconv.Itoa(c.DeviceIndex),
		"-f", strconv.FormatFloat(s.CenterFreq, 'f', 0, 64),
		"-s", strconv.FormatFloat(s.SampleRate, 'f', 0, 64),
	}

	if s.Gain > 0 {
		args = append(args, "-g", strconv.FormatFloat(s.Gain, 'f', -1, 64))
	}

	if c.PPMError != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPMError))
	}

	if s.Direct {
		args = append(args, "-D", strconv.Itoa(directSamplingQ))
	}

	args = append(args, "-n", strconv.Itoa(numSamples), "-") // write to stdout

	return args, nil
}
