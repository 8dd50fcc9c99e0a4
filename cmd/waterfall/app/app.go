package app

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"slices"
	"time"

	"github.com/google/renameio/v2"

	"github.com/roman-kulish/radio-telescope/internal/archive"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	records := make([]*archive.Record, 0, len(config.Inputs))
	for _, path := range config.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := archive.Read(path)
		if err != nil {
			return fmt.Errorf("reading archive '%s': %w", path, err)
		}
		records = append(records, rec)
	}

	slices.SortStableFunc(records, func(a, b *archive.Record) int {
		return a.Stamp.Wall.Compare(b.Stamp.Wall)
	})

	wf := NewWaterfall()
	for i, rec := range records {
		if err := wf.Add(rec); err != nil {
			return fmt.Errorf("adding archive %d: %w", i+1, err)
		}
	}

	derived := wf.Histogram.Bounds()

	logger.Info("finished reading archives",
		slog.Group("stats",
			slog.Int("archives", len(records)),
			slog.Int("blocks", wf.Height),
			slog.String("minTimestamp", wf.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("maxTimestamp", wf.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("minFreq", formatFrequency(wf.FrequencyMin)),
			slog.String("maxFreq", formatFrequency(wf.FrequencyMax)),
			slog.String("minPower", fmt.Sprintf("%0.2fdB", derived.Min)),
			slog.String("maxPower", fmt.Sprintf("%0.2fdB", derived.Max)),
		))

	renderer := NewRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		Bounds:        config.bounds(derived),
		NoAnnotations: config.NoAnnotations,
	})

	logger.Info("rendering waterfall",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", wf.Width),
			slog.Int("height", wf.Height),
		))

	img, err := renderer.Render(wf)
	if err != nil {
		return fmt.Errorf("rendering waterfall: %w", err)
	}

	return writeImage(config.OutputFile, config.Format, img)
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("creating '%s': %w", path, err)
	}
	defer func() { _ = out.Cleanup() }()

	switch format {
	case ImagePNG:
		err = png.Encode(out, img)
	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		err = fmt.Errorf("invalid image format: %s", format)
	}
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	return out.CloseAtomicallyReplace()
}
