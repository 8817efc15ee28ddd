package seat

import (
	"image"
	"log/slog"
	"math"

	"gocv.io/x/gocv"
)

// Extractor finds discrete marker blobs inside the grid region.
type Extractor struct {
	MinArea float64
	MaxArea float64
	logger  *slog.Logger
}

// NewExtractor returns an extractor accepting contour areas in [minArea, maxArea].
func NewExtractor(minArea, maxArea float64, logger *slog.Logger) *Extractor {
	return &Extractor{MinArea: minArea, MaxArea: maxArea, logger: logger}
}

// Extract returns raw candidates (score and quality unset) for every colored
// blob whose area lies in the acceptance band and whose centroid falls inside
// region.
func (e *Extractor) Extract(frame image.Image, region Region, ranges []ColorRange) ([]Candidate, error) {
	hsv, err := toHSV(frame)
	if err != nil {
		return nil, err
	}
	defer hsv.Close()
	return e.extractHSV(hsv, region, ranges), nil
}

func (e *Extractor) extractHSV(hsv gocv.Mat, region Region, ranges []ColorRange) []Candidate {
	mask := colorMask(hsv, ranges)
	defer mask.Close()
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var out []Candidate
	outside := 0
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		area := gocv.ContourArea(pv)
		if area < e.MinArea || area > e.MaxArea {
			continue
		}
		cx, cy, ok := centroid(pv)
		if !ok {
			continue
		}
		if !region.Contains(cx, cy) {
			outside++
			continue
		}
		out = append(out, Candidate{X: cx, Y: cy, Area: area, Source: "cv", Reason: "color marker"})
	}
	if e.logger != nil {
		e.logger.Debug("seat.extract", "contours", contours.Size(), "accepted", len(out), "outside_region", outside)
	}
	return out
}

// centroid returns the contour centroid (m10/m00, m01/m00) truncated toward
// zero. ok is false for a degenerate contour with zero area.
func centroid(pv gocv.PointVector) (cx, cy int, ok bool) {
	if pv.Size() == 0 {
		return 0, 0, false
	}
	pts := gocv.NewMatFromPointVector(pv, true)
	defer pts.Close()
	m := gocv.Moments(pts, false)
	m00 := m["m00"]
	if m00 == 0 {
		return 0, 0, false
	}
	return int(math.Trunc(m["m10"] / m00)), int(math.Trunc(m["m01"] / m00)), true
}
