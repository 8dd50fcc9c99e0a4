package app

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a predefined color scheme for power values
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white
	EnhancedTheme  ColorTheme = "enhanced"  // Black to blue to cyan to yellow to red

	DefaultColorMapSize = 256 // Default number of colors in the map
)

var themes = map[ColorTheme]func(float64) color.Color{
	ClassicTheme: func(p float64) color.Color {
		return colorful.Hsv(240-(p*240), 0.9+(p*0.1), math.Pow(p, 0.7))
	},
	GrayscaleTheme: func(p float64) color.Color {
		v := math.Pow(p, 0.7)
		return colorful.Color{R: v, G: v, B: v}
	},
	JungleTheme: func(p float64) color.Color {
		return colorful.Hsv(120-(p*60), 1, 0.3+(math.Pow(p, 0.6)*0.7))
	},
	ThermalTheme: thermal,
	MarineTheme: func(p float64) color.Color {
		return colorful.Hsv(240-(p*60), 1-(p*0.8), 0.3+(math.Pow(p, 0.6)*0.7))
	},
	EnhancedTheme: enhanced,
}

// thermal blends through black, red, yellow and white in the HCL space
func thermal(p float64) color.Color {
	stops := []colorful.Color{
		{R: 0, G: 0, B: 0},
		{R: 1, G: 0, B: 0},
		{R: 1, G: 1, B: 0},
		{R: 1, G: 1, B: 1},
	}

	pos := p * float64(len(stops)-1)
	i := min(int(pos), len(stops)-2)
	return stops[i].BlendHcl(stops[i+1], pos-float64(i)).Clamped()
}

func enhanced(p float64) color.Color {
	e := math.Pow(p, 0.7)

	switch {
	case p < 0.25:
		return colorful.Hsv(240, 1, math.Min(1, e*4))
	case p < 0.5:
		return colorful.Hsv(240-((p-0.25)*240), 1, math.Min(1, e*1.5))
	case p < 0.75:
		return colorful.Hsv(180-((p-0.5)*4*120), 1, math.Min(1, e*1.5))
	default:
		return colorful.Hsv(60-((p-0.75)*4*60), 1, 1)
	}
}

// ParseColorTheme validates a theme name
func ParseColorTheme(name string) (ColorTheme, error) {
	theme := ColorTheme(name)
	if _, ok := themes[theme]; !ok {
		return "", fmt.Errorf("unknown color theme '%s'", name)
	}
	return theme, nil
}

// ColorMapper provides power-to-color mapping over a fixed power range
type ColorMapper struct {
	colorMap      []color.Color // Pre-computed colors
	powerPerIndex float64       // Power range per index step
	boundsMin     float64
}

// NewColorMapper creates a new color mapper with specified theme and bounds
func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	fn, ok := themes[theme]
	if !ok {
		fn = enhanced
	}

	cm := ColorMapper{
		colorMap:      make([]color.Color, DefaultColorMapSize),
		powerPerIndex: (bounds.Max - bounds.Min) / float64(DefaultColorMapSize-1),
		boundsMin:     bounds.Min,
	}

	for i := range cm.colorMap {
		normalized := float64(i) / float64(DefaultColorMapSize-1)
		c := fn(normalized)
		if cf, ok := c.(colorful.Color); ok {
			c = cf.Clamped()
		}
		cm.colorMap[i] = c
	}
	return &cm
}

// Color returns the color of a power value in dB. Values outside the bounds
// are clamped to the first or last color.
func (cm *ColorMapper) Color(power float64) color.Color {
	last := len(cm.colorMap) - 1
	switch {
	case math.IsNaN(power) || math.IsInf(power, -1) || cm.powerPerIndex <= 0:
		return cm.colorMap[0]
	case math.IsInf(power, 1):
		return cm.colorMap[last]
	}

	index := int((power - cm.boundsMin) / cm.powerPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index > last {
		return cm.colorMap[last]
	}
	return cm.colorMap[index]
}
