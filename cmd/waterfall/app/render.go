package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkHeight = 5
	pixelsPerLabel = 150.0
	pixelsPerTime  = 60

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 80
	defaultBottomBorder = 30
	defaultRightBorder  = 20

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the waterfall
type BorderConfig struct {
	Top    int // Space for frequency scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for waterfall visualization
type RenderConfig struct {
	TimeFormat     string         // Format string for time display (e.g. "15:04:05")
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	ColorTheme ColorTheme
	Bounds     *PowerBounds // Fixed power range; nil derives it from the data

	NoAnnotations bool
	BorderConfig  BorderConfig
}

// Renderer draws a Waterfall into an image
type Renderer struct {
	config RenderConfig
}

// NewRenderer creates a new renderer, filling zero values with defaults
func NewRenderer(config RenderConfig) *Renderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	switch {
	case config.NoAnnotations:
		config.BorderConfig = BorderConfig{}
	case config.BorderConfig == BorderConfig{}:
		config.BorderConfig = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		}
	}

	return &Renderer{config: config}
}

// Render creates an image of the waterfall with annotations. Each block is
// one pixel row and each frequency bin one pixel column.
func (r *Renderer) Render(wf *Waterfall) (*image.RGBA, error) {
	if wf.Height == 0 || wf.Width == 0 {
		return nil, fmt.Errorf("nothing to render")
	}

	borders := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, wf.Width+borders.Left+borders.Right, wf.Height+borders.Top+borders.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	bounds := wf.Histogram.Bounds()
	if r.config.Bounds != nil {
		bounds = *r.config.Bounds
	}
	colors := NewColorMapper(r.config.ColorTheme, bounds)

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(r.config)
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, wf, bounds); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	for y, row := range wf.Rows {
		for x, power := range row.Power {
			img.Set(borders.Left+x, borders.Top+y, colors.Color(power))
		}
	}

	return img, nil
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	fontFace font.Face
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) annotate(img *image.RGBA, wf *Waterfall, bounds PowerBounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, wf); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, wf); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, wf, bounds); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, wf *Waterfall) error {
	borders := a.config.BorderConfig
	count := max(wf.Width/int(pixelsPerLabel), 1)
	hzPerPixel := (wf.FrequencyMax - wf.FrequencyMin) / float64(max(wf.Width-1, 1))

	metrics := a.fontFace.Metrics()
	textY := borders.Top - tickMarkHeight - metrics.Descent.Round()

	for i := 0; i <= count; i++ {
		x := i * (wf.Width - 1) / count
		imgX := borders.Left + x

		for y := borders.Top - tickMarkHeight; y < borders.Top; y++ {
			img.Set(imgX, y, color.Black)
		}

		label := formatFrequency(wf.FrequencyMin + float64(x)*hzPerPixel)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(imgX-width/2, textY)); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

// drawTimeScale labels the first row of every archive, skipping labels that
// would overlap the previous one.
func (a *annotator) drawTimeScale(img *image.RGBA, wf *Waterfall) error {
	borders := a.config.BorderConfig

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	last := -pixelsPerTime
	for y, row := range wf.Rows {
		if !row.First || y-last < fontHeight {
			continue
		}
		last = y

		imgY := borders.Top + y
		for x := borders.Left - tickMarkHeight; x < borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := row.Timestamp.In(a.config.Location).Format(a.config.TimeFormat)
		textY := imgY + fontHeight/2 - metrics.Descent.Round()
		if _, err := a.context.DrawString(label, freetype.Pt(3, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, wf *Waterfall, bounds PowerBounds) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Freq: %s - %s", formatFrequency(wf.FrequencyMin), formatFrequency(wf.FrequencyMax)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		wf.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		wf.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("1px = %s", formatFrequency((wf.FrequencyMax-wf.FrequencyMin)/float64(max(wf.Width-1, 1)))))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Power: %0.0f..%0.0f dB", bounds.Min, bounds.Max))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := img.Bounds().Max.Y - (a.config.BorderConfig.Bottom-fontHeight)/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(a.config.BorderConfig.Left, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

func formatFrequency(hz float64) string {
	value, prefix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f %sHz", value, prefix)
}
