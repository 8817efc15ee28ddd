// Package verify holds local screen checks that need no vision model:
// pixel change around clicked seats, OCR of the selection summary and
// template lookup of the proceed button.
package verify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/soocke/seatbot-go/domain/selection"
)

const (
	defaultPatch       = 12
	pixelDiffThreshold = 10
	changeRatio        = 0.18
)

// ChangeVerifier treats a selection as accepted when the marker under every
// clicked seat changed appearance between the pre-click and post-confirm
// frames.
type ChangeVerifier struct {
	Patch    int
	MinRatio float64
	logger   *slog.Logger
}

// NewChangeVerifier returns a verifier comparing patch-sized squares.
func NewChangeVerifier(logger *slog.Logger) *ChangeVerifier {
	return &ChangeVerifier{Patch: defaultPatch, MinRatio: changeRatio, logger: logger}
}

// Verify implements selection.Verifier.
func (v *ChangeVerifier) Verify(_ context.Context, c selection.Check) (bool, error) {
	if c.Before == nil || c.After == nil {
		return false, fmt.Errorf("%w: missing frame", selection.ErrVerificationAmbiguous)
	}
	if c.Before.Bounds().Size() != c.After.Bounds().Size() {
		return false, fmt.Errorf("%w: frame size changed", selection.ErrVerificationAmbiguous)
	}
	if len(c.Seats) == 0 {
		return false, fmt.Errorf("%w: no seats", selection.ErrVerificationAmbiguous)
	}
	for _, s := range c.Seats {
		before, roi, err := ExtractROI(c.Before, s.X, s.Y, v.Patch)
		if err != nil {
			return false, err
		}
		after, _, err := ExtractROI(c.After, s.X, s.Y, v.Patch)
		if err != nil {
			return false, err
		}
		ratio := ChangedRatio(before, after)
		if v.logger != nil {
			v.logger.Debug("verify.change", "x", s.X, "y", s.Y, "roi", roi.String(), "ratio", ratio)
		}
		if ratio < v.MinRatio {
			return false, nil
		}
	}
	return true, nil
}

// ChangedRatio returns the fraction of pixels whose luma differs by more than
// the noise threshold. Both images must share a size.
func ChangedRatio(a, b *image.RGBA) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	w, h := ab.Dx(), ab.Dy()
	if w <= 0 || h <= 0 || bb.Dx() != w || bb.Dy() != h {
		return 0
	}
	changed := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := int(luma(a, ab.Min.X+x, ab.Min.Y+y)) - int(luma(b, bb.Min.X+x, bb.Min.Y+y))
			if d < 0 {
				d = -d
			}
			if d > pixelDiffThreshold {
				changed++
			}
		}
	}
	return float64(changed) / float64(w*h)
}

func luma(img *image.RGBA, x, y int) byte {
	i := img.PixOffset(x, y)
	r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
	return byte((77*uint32(r) + 150*uint32(g) + 29*uint32(b)) >> 8)
}

// ExtractROI returns the square of side size centered at (cx, cy), clamped
// to the frame and at least 1x1, plus its rectangle in frame coordinates.
func ExtractROI(frame *image.RGBA, cx, cy, size int) (*image.RGBA, image.Rectangle, error) {
	if frame == nil {
		return nil, image.Rectangle{}, errors.New("nil frame")
	}
	if size < 1 {
		size = 1
	}
	b := frame.Bounds()
	half := size / 2
	x0 := max(b.Min.X, min(cx-half, b.Max.X-1))
	y0 := max(b.Min.Y, min(cy-half, b.Max.Y-1))
	x1 := max(x0+1, min(x0+size, b.Max.X))
	y1 := max(y0+1, min(y0+size, b.Max.Y))
	roi := image.Rect(x0, y0, x1, y1)
	return frame.SubImage(roi).(*image.RGBA), roi, nil
}
