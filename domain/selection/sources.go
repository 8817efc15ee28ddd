package selection

import (
	"context"
	"fmt"
	"image"

	"github.com/soocke/seatbot-go/domain/seat"
)

// CVSource proposes seats with the color-marker detection pipeline.
// Color ranges come from each request, so one source serves every profile.
type CVSource struct {
	Detector *seat.Detector
}

// NewCVSource returns a source backed by d.
func NewCVSource(d *seat.Detector) *CVSource {
	return &CVSource{Detector: d}
}

// Candidates implements CandidateSource.
func (s *CVSource) Candidates(_ context.Context, frame *image.RGBA, req Request) (Found, error) {
	det, err := s.Detector.Detect(frame, req.Ranges, req.SeatCount)
	if err != nil {
		return Found{Source: "cv"}, fmt.Errorf("detect: %w", err)
	}
	found := Found{Seats: det.Final, Degraded: det.Degraded, Source: "cv", Detection: &det}
	switch {
	case !det.Found:
		return found, ErrNoRegion
	case len(det.Final) == 0:
		return found, ErrNoCandidates
	}
	return found, nil
}
