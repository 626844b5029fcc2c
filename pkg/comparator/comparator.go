// Package comparator captures an element screenshot and checks it against a
// control image on disk.
package comparator

import (
	"context"
	"image"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/example/shotcmp/pkg/element"
	"github.com/example/shotcmp/pkg/imageio"
	"github.com/example/shotcmp/pkg/similarity"
)

// Result is the outcome of a single comparison.
type Result struct {
	Score     float64
	Threshold float64
	Similar   bool
	Width     int
	Height    int
	// DiffPath is set when a failed comparison wrote a difference image.
	DiffPath string
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Comparator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDecoder replaces the decoder used for both screenshot and control.
func WithDecoder(d *imageio.Decoder) Option {
	return func(c *Comparator) {
		if d != nil {
			c.decoder = d
		}
	}
}

// WithScorer replaces the similarity scorer.
func WithScorer(s similarity.Scorer) Option {
	return func(c *Comparator) { c.scorer = s }
}

// WithThreshold sets the default pass threshold.
func WithThreshold(threshold float64) Option {
	return func(c *Comparator) { c.threshold = threshold }
}

// WithDiffOutput writes a difference image next to the screenshot whenever a
// comparison fails.
func WithDiffOutput() Option {
	return func(c *Comparator) { c.writeDiff = true }
}

// Comparator ties an element, a decoder and a scorer together.
type Comparator struct {
	logger    *zap.Logger
	decoder   *imageio.Decoder
	scorer    similarity.Scorer
	threshold float64
	writeDiff bool
}

// New returns a Comparator with a PNG-only decoder, the default scorer, a
// threshold of similarity.DefaultThreshold and a no-op logger.
func New(opts ...Option) *Comparator {
	c := &Comparator{
		logger:    zap.NewNop(),
		decoder:   imageio.NewDecoder(),
		threshold: similarity.DefaultThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("comparator")
	return c
}

// Threshold returns the default pass threshold.
func (c *Comparator) Threshold() float64 { return c.threshold }

// IsElementSimilarToScreenshot saves el to outputFile and reports whether it
// matches controlFile at the comparator's threshold.
func (c *Comparator) IsElementSimilarToScreenshot(ctx context.Context, el element.Element, controlFile, outputFile string) (bool, error) {
	return c.IsElementSimilarToScreenshotWithThreshold(ctx, el, controlFile, outputFile, c.threshold)
}

// IsElementSimilarToScreenshotWithThreshold is IsElementSimilarToScreenshot
// with an explicit threshold.
func (c *Comparator) IsElementSimilarToScreenshotWithThreshold(ctx context.Context, el element.Element, controlFile, outputFile string, threshold float64) (bool, error) {
	res, err := c.CompareWithThreshold(ctx, el, controlFile, outputFile, threshold)
	if err != nil {
		return false, err
	}
	return res.Similar, nil
}

// Compare captures el and scores it against controlFile.
func (c *Comparator) Compare(ctx context.Context, el element.Element, controlFile, outputFile string) (Result, error) {
	return c.CompareWithThreshold(ctx, el, controlFile, outputFile, c.threshold)
}

// CompareWithThreshold is Compare with an explicit threshold.
//
// Capture, decode and dimension errors are returned unchanged as
// *element.CaptureError, *imageio.DecodeError and
// *similarity.DimensionMismatchError.
func (c *Comparator) CompareWithThreshold(ctx context.Context, el element.Element, controlFile, outputFile string, threshold float64) (Result, error) {
	logger := c.logger.With(zap.String("control", controlFile), zap.String("output", outputFile))

	if err := el.CaptureScreenshot(ctx, outputFile); err != nil {
		return Result{}, err
	}
	logger.Info("screenshot captured, comparing against control")

	candidate, err := c.decoder.DecodeFile(outputFile)
	if err != nil {
		return Result{}, err
	}
	control, err := c.decoder.DecodeFile(controlFile)
	if err != nil {
		return Result{}, err
	}

	res, err := c.score(candidate, control, threshold)
	if err != nil {
		return Result{}, err
	}

	if !res.Similar && c.writeDiff {
		res.DiffPath = diffPath(outputFile)
		if err := imageio.EncodeFile(Diff(candidate, control), res.DiffPath); err != nil {
			logger.Warn("failed to write difference image", zap.String("diff", res.DiffPath), zap.Error(err))
			res.DiffPath = ""
		}
	}

	logger.Info("comparison finished",
		zap.Float64("score", res.Score),
		zap.Float64("threshold", res.Threshold),
		zap.Bool("similar", res.Similar),
	)
	return res, nil
}

func (c *Comparator) score(candidate, control image.Image, threshold float64) (Result, error) {
	score, err := c.scorer.Similarity(candidate, control)
	if err != nil {
		return Result{}, err
	}
	b := control.Bounds()
	return Result{
		Score:     score,
		Threshold: threshold,
		Similar:   score >= threshold,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

func diffPath(outputFile string) string {
	ext := filepath.Ext(outputFile)
	return strings.TrimSuffix(outputFile, ext) + ".diff.png"
}
