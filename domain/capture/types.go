package capture

import (
	"image"
	"time"
)

// FrameSnapshot carries the latest captured frame and metadata.
type FrameSnapshot struct {
	Image      *image.RGBA
	Rect       image.Rectangle
	CapturedAt time.Time
	Sequence   uint64
}

// CaptureStats summarises capture behaviour for instrumentation.
type CaptureStats struct {
	Captures       uint64        `json:"captures"`
	Failures       uint64        `json:"failures"`
	AvgCapture     time.Duration `json:"avg_capture_ns"`
	LastCapture    time.Time     `json:"last_capture"`
	LatestFrameAge time.Duration `json:"latest_frame_age_ns"`
	Sequence       uint64        `json:"sequence"`
}
