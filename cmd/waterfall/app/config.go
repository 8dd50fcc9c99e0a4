package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

// Config holds the waterfall command options
type Config struct {
	Inputs        []string // Archive files
	OutputFile    string   // Output path; the format extension is added when missing
	Format        ImageFormat
	Theme         ColorTheme
	MinPower      *float64 // dB; nil derives the lower bound from the data
	MaxPower      *float64 // dB; nil derives the upper bound from the data
	TimeZone      *time.Location
	NoAnnotations bool
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    EnhancedTheme,
		TimeZone: time.UTC,
	}
}

// Normalize validates the options and completes the output file name
func (c *Config) Normalize() error {
	c.Format = ImageFormat(strings.ToLower(string(c.Format)))

	switch {
	case len(c.Inputs) == 0:
		return errors.New("at least one archive is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	}
	if _, ok := validImageFormats[c.Format]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Format)
	}
	if _, err := ParseColorTheme(string(c.Theme)); err != nil {
		return err
	}
	if c.MinPower != nil && c.MaxPower != nil && *c.MinPower >= *c.MaxPower {
		return fmt.Errorf("min power must be below max power: %0.1f >= %0.1f", *c.MinPower, *c.MaxPower)
	}

	if filepath.Ext(c.OutputFile) == "" {
		c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	}
	return nil
}

// bounds resolves the fixed power range, filling an unset end from derived
func (c *Config) bounds(derived PowerBounds) *PowerBounds {
	if c.MinPower == nil && c.MaxPower == nil {
		return nil
	}

	b := derived
	if c.MinPower != nil {
		b.Min = *c.MinPower
	}
	if c.MaxPower != nil {
		b.Max = *c.MaxPower
	}
	return &b
}
