package seat

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

var (
	markAll   = color.RGBA{G: 255, A: 255}
	markFinal = color.RGBA{R: 255, A: 255}
	markGrid  = color.RGBA{B: 255, A: 255}
)

// ArtifactName returns the debug artifact file name for a run at t.
func ArtifactName(t time.Time, runID string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return fmt.Sprintf("seatmap_%s_%s.png", t.Format("20060102-150405"), runID)
}

// Annotate writes a copy of frame with every ranked candidate marked, the
// final selection highlighted and numbered and the grid region outlined.
// The file is diagnostic only and never read back.
func Annotate(dir, runID string, frame image.Image, det Detection) (string, error) {
	if err := checkFrame(frame); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("debug dir: %w", err)
	}
	img, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return "", fmt.Errorf("annotate: %w", err)
	}
	defer img.Close()

	if det.Found {
		gocv.Rectangle(&img, det.Region.Rect, markGrid, 1)
	}
	for _, c := range det.Ranked {
		gocv.Circle(&img, c.Point(), 3, markAll, -1)
	}
	for i, c := range det.Final {
		gocv.Circle(&img, c.Point(), 5, markFinal, -1)
		gocv.PutText(&img, fmt.Sprintf("%d", i+1), c.Point().Add(image.Pt(5, -5)), gocv.FontHersheySimplex, 0.5, markFinal, 2)
	}
	path := filepath.Join(dir, ArtifactName(time.Now(), runID))
	if ok := gocv.IMWrite(path, img); !ok {
		return "", fmt.Errorf("annotate: write %s failed", path)
	}
	return path, nil
}
