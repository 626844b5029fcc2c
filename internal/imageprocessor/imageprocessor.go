package imageprocessor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/example/shotcmp/pkg/imageio"
	"github.com/example/shotcmp/pkg/similarity"
)

// ErrInvalidImage is returned when an uploaded image cannot be decoded.
var ErrInvalidImage = errors.New("imageprocessor: invalid image")

// Result contains the outcome of comparing an uploaded candidate against its
// control.
type Result struct {
	Similar   bool
	Score     float64
	Threshold float64
	Width     int
	Height    int
	Message   string
	// Control is the decoded control image, kept for fingerprinting.
	Control image.Image
}

// Client exposes the comparison used by the service workflow.
type Client interface {
	Process(ctx context.Context, candidate, control []byte, threshold float64) (*Result, error)
}

// Local scores images in-process.
type Local struct {
	decoder *imageio.Decoder
	scorer  similarity.Scorer
	logger  *zap.Logger
}

// NewLocal returns a Local processor that accepts every supported format.
func NewLocal(scorer similarity.Scorer, logger *zap.Logger) *Local {
	return &Local{
		decoder: imageio.NewDecoder(imageio.WithAllFormats()),
		scorer:  scorer,
		logger:  logger.Named("imageprocessor"),
	}
}

// Process decodes both uploads and compares them. Decode failures wrap
// ErrInvalidImage; size differences return similarity.ErrDimensionMismatch.
func (l *Local) Process(ctx context.Context, candidate, control []byte, threshold float64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candImg, _, err := l.decoder.Decode(bytes.NewReader(candidate))
	if err != nil {
		return nil, fmt.Errorf("%w: candidate: %w", ErrInvalidImage, err)
	}
	ctrlImg, format, err := l.decoder.Decode(bytes.NewReader(control))
	if err != nil {
		return nil, fmt.Errorf("%w: control: %w", ErrInvalidImage, err)
	}

	score, err := l.scorer.Similarity(candImg, ctrlImg)
	if err != nil {
		return nil, err
	}

	b := ctrlImg.Bounds()
	res := &Result{
		Similar:   score >= threshold,
		Score:     score,
		Threshold: threshold,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Control:   ctrlImg,
	}
	if res.Similar {
		res.Message = "images are similar"
	} else {
		res.Message = fmt.Sprintf("similarity %.4f below threshold %.4f", score, threshold)
	}

	l.logger.Debug("images compared",
		zap.Float64("score", score),
		zap.Stringer("control_format", format),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
	)
	return res, nil
}
