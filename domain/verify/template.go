package verify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"gocv.io/x/gocv"
)

// DefaultMatchThreshold is the minimum normalized correlation accepted as a hit.
const DefaultMatchThreshold = 0.8

// ErrTemplateNotFound reports that the template did not match well enough.
var ErrTemplateNotFound = errors.New("verify: template not found")

// Clicker clicks at absolute screen coordinates.
type Clicker interface {
	Click(x, y int) error
}

// TemplateProceeder finds a reference image of the proceed button in the
// frame and clicks its center.
type TemplateProceeder struct {
	path      string
	threshold float64
	clicker   Clicker
	logger    *slog.Logger
}

// NewTemplateProceeder returns a proceeder matching the image at path.
func NewTemplateProceeder(path string, clicker Clicker, logger *slog.Logger) *TemplateProceeder {
	return &TemplateProceeder{path: path, threshold: DefaultMatchThreshold, clicker: clicker, logger: logger}
}

// Proceed implements selection.Proceeder.
func (p *TemplateProceeder) Proceed(_ context.Context, frame *image.RGBA, monitor image.Rectangle) error {
	pt, score, err := p.Locate(frame)
	if err != nil {
		return err
	}
	abs := monitor.Min.Add(pt)
	if p.logger != nil {
		p.logger.Info("verify.template.proceed", "x", abs.X, "y", abs.Y, "score", score)
	}
	return p.clicker.Click(abs.X, abs.Y)
}

// Locate returns the center of the best template match in frame coordinates.
func (p *TemplateProceeder) Locate(frame image.Image) (image.Point, float64, error) {
	if _, err := os.Stat(p.path); err != nil {
		return image.Point{}, 0, fmt.Errorf("template: %w", err)
	}
	tmpl := gocv.IMRead(p.path, gocv.IMReadColor)
	if tmpl.Empty() {
		tmpl.Close()
		return image.Point{}, 0, fmt.Errorf("template: cannot decode %s", p.path)
	}
	defer tmpl.Close()
	return MatchCenter(frame, tmpl, p.threshold)
}

// MatchCenter runs normalized correlation of tmpl (BGR) over frame and returns
// the center of the best hit when its score reaches threshold.
func MatchCenter(frame image.Image, tmpl gocv.Mat, threshold float64) (image.Point, float64, error) {
	src, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return image.Point{}, 0, fmt.Errorf("frame to mat: %w", err)
	}
	defer src.Close()
	if tmpl.Cols() > src.Cols() || tmpl.Rows() > src.Rows() {
		return image.Point{}, 0, fmt.Errorf("%w: template larger than frame", ErrTemplateNotFound)
	}
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(src, tmpl, &result, gocv.TmCcoeffNormed, mask)
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	score := float64(maxVal)
	if score < threshold {
		return image.Point{}, score, fmt.Errorf("%w: best %.2f", ErrTemplateNotFound, score)
	}
	return maxLoc.Add(image.Pt(tmpl.Cols()/2, tmpl.Rows()/2)), score, nil
}
