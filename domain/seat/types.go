// Package seat implements seat-marker detection on a seat-map snapshot:
// color profiles, grid region segmentation, candidate extraction, density
// filtering, stage/centrality scoring and consecutive-run search.
//
// All coordinates are pixel offsets inside the analysed frame, origin at the
// top-left corner. Hue uses the OpenCV 0..180 scale.
package seat

import (
	"errors"
	"fmt"
	"image"
)

// ErrInvalidGeometry reports a frame with non-positive dimensions.
var ErrInvalidGeometry = errors.New("seat: invalid frame geometry")

// HSV is a color in OpenCV hue-saturation-value space (H 0..180, S/V 0..255).
type HSV struct {
	H, S, V uint8
}

// ColorRange is a tolerant lower/upper HSV band derived from a reference swatch.
type ColorRange struct {
	Name  string `json:"name"`
	Lower HSV    `json:"lower"`
	Upper HSV    `json:"upper"`
}

func (r ColorRange) String() string {
	return fmt.Sprintf("%s[%d,%d,%d..%d,%d,%d]", r.Name, r.Lower.H, r.Lower.S, r.Lower.V, r.Upper.H, r.Upper.S, r.Upper.V)
}

// Candidate is one detected seat marker. Lower Score is better; Quality is a
// 0..100 display transform of Score.
type Candidate struct {
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Area    float64 `json:"area"`
	Score   float64 `json:"score"`
	Quality int     `json:"quality"`
	Source  string  `json:"source"`
	Reason  string  `json:"reason,omitempty"`
}

// Point returns the candidate center.
func (c Candidate) Point() image.Point { return image.Pt(c.X, c.Y) }

// Region is the bounding box of the seat grid inside a frame.
type Region struct {
	Rect image.Rectangle
}

// Contains reports whether (x, y) lies inside the region. Edges are inclusive
// on all four sides.
func (r Region) Contains(x, y int) bool {
	return x >= r.Rect.Min.X && x <= r.Rect.Max.X && y >= r.Rect.Min.Y && y <= r.Rect.Max.Y
}

// Row groups candidates that share an approximate vertical position.
type Row struct {
	RefY  int
	Seats []Candidate
}

// RunResult is the outcome of a consecutive-run search. Degraded is set when
// no row satisfied the adjacency constraint and Seats holds the top-K instead.
type RunResult struct {
	Seats    []Candidate
	AvgScore float64
	Degraded bool
}

// Params carries the detection thresholds used by one cycle.
type Params struct {
	MinArea            float64
	MaxArea            float64
	DensityRadius      float64
	MinNeighbors       int
	RowTolerance       int
	AdjacencyTolerance int
	QualityNorm        float64
	TopK               int
}

// DefaultParams mirrors config defaults.
func DefaultParams() Params {
	return Params{
		MinArea:            30,
		MaxArea:            500,
		DensityRadius:      30,
		MinNeighbors:       3,
		RowTolerance:       10,
		AdjacencyTolerance: 15,
		QualityNorm:        500,
		TopK:               5,
	}
}

func checkFrame(frame image.Image) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidGeometry)
	}
	b := frame.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, b.Dx(), b.Dy())
	}
	return nil
}
