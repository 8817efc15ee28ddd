package verify

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/domain/selection"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

func paint(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, &image.Uniform{c}, image.Point{}, draw.Src)
}

func TestChangeVerifier_DetectsRecoloredSeats(t *testing.T) {
	before := solid(100, 100, color.RGBA{0, 200, 0, 255})
	after := solid(100, 100, color.RGBA{0, 200, 0, 255})
	paint(after, image.Rect(14, 14, 26, 26), color.RGBA{60, 60, 60, 255})

	v := NewChangeVerifier(nil)
	ok, err := v.Verify(context.Background(), selection.Check{
		Before: before, After: after,
		Seats: []seat.Candidate{{X: 20, Y: 20}},
	})
	if err != nil || !ok {
		t.Fatalf("expected change, got %v %v", ok, err)
	}
	ok, err = v.Verify(context.Background(), selection.Check{
		Before: before, After: after,
		Seats: []seat.Candidate{{X: 20, Y: 20}, {X: 70, Y: 70}},
	})
	if err != nil || ok {
		t.Fatalf("second seat unchanged, got %v %v", ok, err)
	}
}

func TestChangeVerifier_MissingEvidence(t *testing.T) {
	_, err := NewChangeVerifier(nil).Verify(context.Background(), selection.Check{After: solid(5, 5, color.White)})
	if !errors.Is(err, selection.ErrVerificationAmbiguous) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
}

func TestExtractROI_ClampsToFrame(t *testing.T) {
	frame := solid(50, 40, color.White)
	cases := []struct {
		cx, cy, size int
		want         image.Rectangle
	}{
		{25, 20, 10, image.Rect(20, 15, 30, 25)},
		{0, 0, 10, image.Rect(0, 0, 10, 10)},
		{49, 39, 10, image.Rect(44, 34, 50, 40)},
		{200, 200, 10, image.Rect(49, 39, 50, 40)},
		{10, 10, 0, image.Rect(10, 10, 11, 11)},
	}
	for _, c := range cases {
		roi, r, err := ExtractROI(frame, c.cx, c.cy, c.size)
		if err != nil {
			t.Fatal(err)
		}
		if r != c.want || roi.Bounds() != c.want {
			t.Fatalf("ExtractROI(%d,%d,%d)=%v want %v", c.cx, c.cy, c.size, r, c.want)
		}
	}
	if _, _, err := ExtractROI(nil, 0, 0, 3); err == nil {
		t.Fatalf("nil frame must fail")
	}
}

func TestChangedRatio(t *testing.T) {
	a := solid(10, 10, color.Black)
	b := solid(10, 10, color.Black)
	paint(b, image.Rect(0, 0, 10, 5), color.White)
	if got := ChangedRatio(a, b); got != 0.5 {
		t.Fatalf("ratio %v", got)
	}
	if got := ChangedRatio(a, solid(3, 3, color.Black)); got != 0 {
		t.Fatalf("size mismatch should be 0, got %v", got)
	}
}

func TestMatchesSeatCount(t *testing.T) {
	cases := []struct {
		text string
		n    int
		want bool
	}{
		{"선택좌석\n총 2석 선택되었습니다", 2, true},
		{"총2석", 2, true},
		{"1석 선택", 1, true},
		{"총 12석 선택되었습니다", 2, false},
		{"총 12석 선택되었습니다", 12, true},
		{"2 Seats selected", 2, true},
		{"3 seats selected", 2, false},
		{"좌석을 선택하세요", 1, false},
		{"총 1석", 0, false},
	}
	for _, c := range cases {
		if got := MatchesSeatCount(c.text, c.n); got != c.want {
			t.Fatalf("MatchesSeatCount(%q,%d)=%v want %v", c.text, c.n, got, c.want)
		}
	}
}

func TestMatchCenter_FindsButton(t *testing.T) {
	frame := solid(120, 80, color.White)
	paint(frame, image.Rect(70, 40, 80, 50), color.RGBA{200, 0, 0, 255})
	paint(frame, image.Rect(80, 40, 90, 50), color.RGBA{0, 0, 200, 255})
	paint(frame, image.Rect(74, 44, 86, 46), color.Black)

	tmplImg := imaging.Crop(frame, image.Rect(70, 40, 90, 50))
	tmpl, err := gocv.ImageToMatRGB(tmplImg)
	if err != nil {
		t.Fatal(err)
	}
	defer tmpl.Close()

	pt, score, err := MatchCenter(frame, tmpl, DefaultMatchThreshold)
	if err != nil {
		t.Fatalf("match: %v (score %.3f)", err, score)
	}
	if pt != image.Pt(80, 45) {
		t.Fatalf("center %v", pt)
	}
}

func TestTemplateProceeder_MissingTemplate(t *testing.T) {
	p := NewTemplateProceeder(t.TempDir()+"/nope.png", nil, nil)
	if err := p.Proceed(context.Background(), solid(10, 10, color.White), image.Rect(0, 0, 10, 10)); err == nil {
		t.Fatalf("expected error for missing template")
	}
}
