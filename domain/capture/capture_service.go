// Package capture grabs screen rectangles for the selection loop and keeps
// simple capture instrumentation.
package capture

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vova616/screenshot"
)

const captureStatsLogInterval = 30 * time.Second

// ErrFrameSize reports a capture whose dimensions differ from the request.
var ErrFrameSize = errors.New("capture: frame size mismatch")

// GrabFunc captures an absolute screen rectangle.
type GrabFunc func(rect image.Rectangle) (*image.RGBA, error)

// Service captures on demand. Frames are normalized so their bounds start at
// (0,0); coordinates found in a frame are offsets inside the requested rect.
type Service struct {
	grab         GrabFunc
	logger       *slog.Logger
	latest       atomic.Pointer[FrameSnapshot]
	captures     atomic.Uint64
	failures     atomic.Uint64
	captureNanos atomic.Uint64
	sequence     atomic.Uint64
	lastLog      atomic.Int64
}

// NewService returns a service backed by the platform screenshot library.
func NewService(logger *slog.Logger) *Service {
	return NewServiceWithGrab(logger, screenshot.CaptureRect)
}

// NewServiceWithGrab returns a service using grab; tests substitute a fake.
func NewServiceWithGrab(logger *slog.Logger, grab GrabFunc) *Service {
	return &Service{grab: grab, logger: logger}
}

// Capture grabs rect and returns an origin-normalized RGBA frame.
func (s *Service) Capture(rect image.Rectangle) (*image.RGBA, error) {
	if rect.Empty() {
		s.failures.Add(1)
		return nil, fmt.Errorf("capture: empty rectangle %v", rect)
	}
	start := time.Now()
	img, err := s.grab(rect)
	if err != nil {
		s.failures.Add(1)
		if s.logger != nil {
			s.logger.Error("capture.grab", "rect", rect.String(), "error", err)
		}
		return nil, fmt.Errorf("capture: %w", err)
	}
	if img == nil || img.Bounds().Dx() != rect.Dx() || img.Bounds().Dy() != rect.Dy() {
		s.failures.Add(1)
		got := image.Rectangle{}
		if img != nil {
			got = img.Bounds()
		}
		return nil, fmt.Errorf("%w: want %dx%d, got %dx%d", ErrFrameSize, rect.Dx(), rect.Dy(), got.Dx(), got.Dy())
	}
	img = normalize(img)

	s.captureNanos.Add(uint64(time.Since(start).Nanoseconds()))
	s.captures.Add(1)
	seq := s.sequence.Add(1)
	s.latest.Store(&FrameSnapshot{Image: img, Rect: rect, CapturedAt: time.Now(), Sequence: seq})
	s.maybeLogStats()
	return img, nil
}

// LatestFrame returns the most recent successful capture.
func (s *Service) LatestFrame() FrameSnapshot {
	snap := s.latest.Load()
	if snap == nil {
		return FrameSnapshot{}
	}
	return *snap
}

// Stats reports capture counters and the mean grab latency.
func (s *Service) Stats() CaptureStats {
	captures := s.captures.Load()
	total := s.captureNanos.Load()
	var avg time.Duration
	if captures > 0 && total > 0 {
		avg = time.Duration(total / captures)
	}
	snapshot := s.LatestFrame()
	age := time.Duration(0)
	if !snapshot.CapturedAt.IsZero() {
		age = time.Since(snapshot.CapturedAt)
	}
	return CaptureStats{
		Captures:       captures,
		Failures:       s.failures.Load(),
		AvgCapture:     avg,
		LastCapture:    snapshot.CapturedAt,
		LatestFrameAge: age,
		Sequence:       snapshot.Sequence,
	}
}

func (s *Service) maybeLogStats() {
	if s.logger == nil {
		return
	}
	now := time.Now().UnixNano()
	last := s.lastLog.Load()
	if last != 0 && time.Duration(now-last) < captureStatsLogInterval {
		return
	}
	if !s.lastLog.CompareAndSwap(last, now) {
		return
	}
	stats := s.Stats()
	s.logger.Debug("capture.stats",
		"captures", stats.Captures,
		"failures", stats.Failures,
		"avg_capture", stats.AvgCapture,
	)
}

// normalize returns img with bounds starting at the origin, copying only
// when the source is offset.
func normalize(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
