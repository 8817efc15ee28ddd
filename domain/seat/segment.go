package seat

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"
)

// Neutral "sold/unavailable" marker band.
var (
	grayLower = HSV{H: 0, S: 0, V: 100}
	grayUpper = HSV{H: 180, S: 30, V: 200}
)

// Broad "any saturated color" band used when no profile is loaded.
var (
	anyColorLower = HSV{H: 0, S: 30, V: 50}
	anyColorUpper = HSV{H: 180, S: 255, V: 255}
)

// Segmenter isolates the bounding box of the seat grid within a frame.
type Segmenter struct {
	logger *slog.Logger
}

// NewSegmenter returns a segmenter. logger may be nil.
func NewSegmenter(logger *slog.Logger) *Segmenter { return &Segmenter{logger: logger} }

// Segment returns the bounding box of the largest connected region of gray
// and colored markers. ok is false when nothing plausible was found.
func (s *Segmenter) Segment(frame image.Image, ranges []ColorRange) (Region, bool, error) {
	hsv, err := toHSV(frame)
	if err != nil {
		return Region{}, false, err
	}
	defer hsv.Close()
	return s.segmentHSV(hsv, ranges)
}

func (s *Segmenter) segmentHSV(hsv gocv.Mat, ranges []ColorRange) (Region, bool, error) {
	gray := inRange(hsv, grayLower, grayUpper)
	defer gray.Close()
	colored := colorMask(hsv, ranges)
	defer colored.Close()

	all := gocv.NewMat()
	defer all.Close()
	gocv.BitwiseOr(gray, colored, &all)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5))
	defer kernel.Close()
	gocv.MorphologyEx(all, &all, gocv.MorphClose, kernel)
	gocv.MorphologyEx(all, &all, gocv.MorphOpen, kernel)

	contours := gocv.FindContours(all, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		if s.logger != nil {
			s.logger.Debug("seat.region.none")
		}
		return Region{}, false, nil
	}
	best, bestArea := -1, -1.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); a > bestArea {
			best, bestArea = i, a
		}
	}
	rect := gocv.BoundingRect(contours.At(best))
	region := Region{Rect: rect}
	if s.logger != nil {
		s.logger.Debug("seat.region", "min_x", rect.Min.X, "min_y", rect.Min.Y, "max_x", rect.Max.X, "max_y", rect.Max.Y, "area", bestArea)
	}
	return region, true, nil
}

// toHSV converts an arbitrary image into an OpenCV HSV matrix.
func toHSV(frame image.Image) (gocv.Mat, error) {
	if err := checkFrame(frame); err != nil {
		return gocv.NewMat(), err
	}
	bgr, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("seat: frame to mat: %w", err)
	}
	defer bgr.Close()
	hsv := gocv.NewMat()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)
	return hsv, nil
}

func inRange(hsv gocv.Mat, lo, hi HSV) gocv.Mat {
	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv,
		gocv.NewScalar(float64(lo.H), float64(lo.S), float64(lo.V), 0),
		gocv.NewScalar(float64(hi.H), float64(hi.S), float64(hi.V), 0),
		&mask)
	return mask
}

// colorMask unions the masks of every range, or applies the broad saturated
// heuristic when ranges is empty.
func colorMask(hsv gocv.Mat, ranges []ColorRange) gocv.Mat {
	if len(ranges) == 0 {
		return inRange(hsv, anyColorLower, anyColorUpper)
	}
	mask := inRange(hsv, ranges[0].Lower, ranges[0].Upper)
	for _, r := range ranges[1:] {
		m := inRange(hsv, r.Lower, r.Upper)
		gocv.BitwiseOr(mask, m, &mask)
		m.Close()
	}
	return mask
}
