package seat

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

var (
	white  = color.RGBA{255, 255, 255, 255}
	panel  = color.RGBA{150, 150, 150, 255}
	marker = color.RGBA{0, 200, 0, 255}
)

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, &image.Uniform{c}, image.Point{}, draw.Src)
}

// blob draws an 8x8 marker whose detected center is (x0+3, y0+3).
func blob(img *image.RGBA, x0, y0 int) {
	fill(img, image.Rect(x0, y0, x0+8, y0+8), marker)
}

// gridFrame renders a gray panel holding a 4x5 marker grid at 20px pitch and
// three legend swatches on the white background to the right. shift moves
// the blob at (row, col) horizontally by dx.
func gridFrame(shift map[[2]int]int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	fill(img, img.Bounds(), white)
	fill(img, image.Rect(44, 44, 144, 124), panel)
	for r := 0; r < 4; r++ {
		for c := 0; c < 5; c++ {
			blob(img, 50+20*c+shift[[2]int{r, c}], 50+20*r)
		}
	}
	for _, y := range []int{20, 60, 100} {
		blob(img, 220, y)
	}
	return img
}

func TestSegment_FindsPanel(t *testing.T) {
	region, ok, err := NewSegmenter(discardLogger()).Segment(gridFrame(nil), nil)
	if err != nil || !ok {
		t.Fatalf("segment: ok=%v err=%v", ok, err)
	}
	if region.Rect != image.Rect(44, 44, 144, 124) {
		t.Fatalf("region %v", region.Rect)
	}
}

func TestSegment_BlankFrame(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	fill(img, img.Bounds(), white)
	_, ok, err := NewSegmenter(nil).Segment(img, nil)
	if err != nil || ok {
		t.Fatalf("expected no region, ok=%v err=%v", ok, err)
	}
}

func TestSegment_InvalidGeometry(t *testing.T) {
	_, _, err := NewSegmenter(nil).Segment(image.NewRGBA(image.Rectangle{}), nil)
	if err == nil {
		t.Fatalf("expected geometry error")
	}
}

func TestExtract_RejectsLegendOutsideRegion(t *testing.T) {
	frame := gridFrame(nil)
	region := Region{Rect: image.Rect(44, 44, 144, 124)}
	cands, err := NewExtractor(30, 500, nil).Extract(frame, region, nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(cands) != 20 {
		t.Fatalf("expected 20 grid markers, got %d", len(cands))
	}
	for _, c := range cands {
		if !region.Contains(c.X, c.Y) {
			t.Fatalf("candidate %v outside region", c)
		}
		if (c.X-53)%20 != 0 || (c.Y-53)%20 != 0 {
			t.Fatalf("unexpected centroid %v", c)
		}
		if c.Source != "cv" {
			t.Fatalf("source %q", c.Source)
		}
	}
}

func TestExtract_AreaBand(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	fill(img, img.Bounds(), white)
	fill(img, image.Rect(10, 10, 14, 14), marker)   // too small
	fill(img, image.Rect(30, 30, 38, 38), marker)   // accepted
	fill(img, image.Rect(50, 50, 100, 100), marker) // too large
	cands, err := NewExtractor(30, 500, nil).Extract(img, Region{Rect: img.Bounds()}, nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(cands) != 1 || cands[0].X != 33 || cands[0].Y != 33 {
		t.Fatalf("expected only the mid-size blob, got %v", cands)
	}
}

func TestCentroid(t *testing.T) {
	tests := []struct {
		name   string
		pts    []image.Point
		cx, cy int
		ok     bool
	}{
		{"square", []image.Point{{10, 10}, {20, 10}, {20, 20}, {10, 20}}, 15, 15, true},
		{"reversed winding", []image.Point{{10, 20}, {20, 20}, {20, 10}, {10, 10}}, 15, 15, true},
		{"triangle truncates", []image.Point{{0, 0}, {10, 0}, {0, 10}}, 3, 3, true},
		{"line has no area", []image.Point{{0, 0}, {5, 0}}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pv := gocv.NewPointVectorFromPoints(tt.pts)
			defer pv.Close()
			cx, cy, ok := centroid(pv)
			if ok != tt.ok || cx != tt.cx || cy != tt.cy {
				t.Fatalf("centroid=(%d,%d,%v) want (%d,%d,%v)", cx, cy, ok, tt.cx, tt.cy, tt.ok)
			}
		})
	}
}

func TestDetect_SingleSeatPrefersStageCenter(t *testing.T) {
	det, err := NewDetector(DefaultParams(), discardLogger()).Detect(gridFrame(nil), nil, 1)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !det.Found || len(det.Raw) != 20 || len(det.Ranked) != 20 {
		t.Fatalf("found=%v raw=%d ranked=%d", det.Found, len(det.Raw), len(det.Ranked))
	}
	if det.CenterX != 93 || det.StageY != 53 {
		t.Fatalf("reference (%d,%d)", det.CenterX, det.StageY)
	}
	top := det.Final[0]
	if top.X != 93 || top.Y != 53 || top.Score != 0 || top.Quality != 100 {
		t.Fatalf("top candidate %+v", top)
	}
	if len(det.Final) != 5 {
		t.Fatalf("expected top-5, got %d", len(det.Final))
	}
}

func TestDetect_PairFromOnlyAdjacentRow(t *testing.T) {
	// Row 1 column 1 sits 12px right of column 0; every other gap is 20px.
	frame := gridFrame(map[[2]int]int{{1, 1}: -8})
	det, err := NewDetector(DefaultParams(), nil).Detect(frame, nil, 2)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if det.Degraded {
		t.Fatalf("unexpected degradation")
	}
	if len(det.Final) != 2 {
		t.Fatalf("expected a pair, got %v", det.Final)
	}
	if det.Final[0].Point() != image.Pt(53, 73) || det.Final[1].Point() != image.Pt(65, 73) {
		t.Fatalf("pair %v", det.Final)
	}
}

func TestDetect_RunUnavailableDegrades(t *testing.T) {
	det, err := NewDetector(DefaultParams(), nil).Detect(gridFrame(nil), nil, 2)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !det.Degraded || len(det.Final) != 5 {
		t.Fatalf("expected degraded top-5, got degraded=%v n=%d", det.Degraded, len(det.Final))
	}
}

func TestDetect_NoRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 150))
	fill(img, img.Bounds(), white)
	det, err := NewDetector(DefaultParams(), nil).Detect(img, nil, 1)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if det.Found || len(det.Final) != 0 {
		t.Fatalf("expected empty detection, got %+v", det)
	}
}

func TestDetect_WithSwatchProfile(t *testing.T) {
	dir := t.TempDir()
	sw := image.NewRGBA(image.Rect(0, 0, 20, 20))
	fill(sw, sw.Bounds(), marker)
	if err := imaging.Save(sw, filepath.Join(dir, "green.png")); err != nil {
		t.Fatalf("save swatch: %v", err)
	}
	ranges, err := NewProfileStore(dir, nil).Load(AllProfiles)
	if err != nil || len(ranges) != 1 {
		t.Fatalf("load: %v %v", ranges, err)
	}
	det, err := NewDetector(DefaultParams(), nil).Detect(gridFrame(nil), ranges, 1)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(det.Ranked) != 20 {
		t.Fatalf("expected 20 candidates with profile, got %d", len(det.Ranked))
	}
}

func TestProfileStore_MissingDirCreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seat_colors")
	store := NewProfileStore(dir, nil)
	ranges, err := store.Load(AllProfiles)
	if err != nil || len(ranges) != 0 {
		t.Fatalf("expected empty ranges, got %v %v", ranges, err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("profile dir not created: %v", err)
	}
}

func TestProfileStore_SelectorAndNames(t *testing.T) {
	dir := t.TempDir()
	for name, c := range map[string]color.RGBA{
		"vip":  {200, 0, 0, 255},
		"r":    {0, 0, 200, 255},
		"note": {0, 0, 0, 0},
	} {
		sw := image.NewRGBA(image.Rect(0, 0, 16, 16))
		fill(sw, sw.Bounds(), c)
		ext := ".png"
		if name == "note" {
			ext = ".txt"
		}
		f, err := os.Create(filepath.Join(dir, name+ext))
		if err != nil {
			t.Fatal(err)
		}
		if ext == ".png" {
			if err := imaging.Encode(f, sw, imaging.PNG); err != nil {
				t.Fatal(err)
			}
		}
		f.Close()
	}
	store := NewProfileStore(dir, discardLogger())
	names, err := store.Names()
	if err != nil || strings.Join(names, ",") != "r,vip" {
		t.Fatalf("names %v err %v", names, err)
	}
	profiles, err := store.Profiles("vip")
	if err != nil || len(profiles) != 1 {
		t.Fatalf("profiles %v err %v", profiles, err)
	}
	p := profiles[0]
	if p.Name != "vip" || p.Hex != "#c80000" {
		t.Fatalf("profile %+v", p)
	}
	if p.Range.Lower.H != 0 || p.Range.Upper.H != 10 {
		t.Fatalf("red hue band %v", p.Range)
	}
	none, err := store.Load("missing")
	if err != nil || len(none) != 0 {
		t.Fatalf("unknown selector should be empty, got %v %v", none, err)
	}
}

func TestAnnotate_WritesArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "temp")
	frame := gridFrame(nil)
	det, err := NewDetector(DefaultParams(), nil).Detect(frame, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	path, err := Annotate(dir, "0123456789abcdef", frame, det)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "seatmap_") || !strings.HasSuffix(base, "_01234567.png") {
		t.Fatalf("artifact name %q", base)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
}

func TestArtifactName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if got := ArtifactName(ts, "abc"); got != "seatmap_20240309-140507_abc.png" {
		t.Fatalf("got %q", got)
	}
}
