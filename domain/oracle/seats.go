package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"sort"
	"strconv"

	"github.com/soocke/seatbot-go/domain/seat"
	"github.com/soocke/seatbot-go/domain/selection"
)

// Number accepts a JSON number or a quoted number.
type Number struct {
	V   float64
	Set bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 1 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		n.V, n.Set = v, true
		return nil
	}
	if err := json.Unmarshal(b, &n.V); err != nil {
		return err
	}
	n.Set = true
	return nil
}

// RawSeat is one seat as the model reports it.
type RawSeat struct {
	XPx     Number `json:"x_px"`
	YPx     Number `json:"y_px"`
	X       Number `json:"x"`
	Y       Number `json:"y"`
	Quality Number `json:"quality"`
	Reason  string `json:"reason"`
}

type seatsAnswer struct {
	Seats []RawSeat `json:"seats"`
}

// ToCandidates converts model seats into frame-pixel candidates. Pixel keys
// win over x/y. For x/y each axis is read as a 0..1 fraction when it is at
// most 1.0, otherwise as a model pixel. Model pixels are mapped back through
// shot.Scale. Seats landing outside the frame are dropped.
func ToCandidates(raw []RawSeat, shot Shot) []seat.Candidate {
	fb := shot.Frame.Bounds()
	w, h := fb.Dx(), fb.Dy()
	scale := shot.Scale
	if scale <= 0 {
		scale = 1
	}
	out := make([]seat.Candidate, 0, len(raw))
	for _, r := range raw {
		var fx, fy float64
		switch {
		case r.XPx.Set && r.YPx.Set:
			fx, fy = r.XPx.V*scale, r.YPx.V*scale
		case r.X.Set && r.Y.Set:
			fx = axis(r.X.V, w, scale)
			fy = axis(r.Y.V, h, scale)
		default:
			continue
		}
		x, y := int(fx), int(fy)
		if fx < 0 || fy < 0 || x >= w || y >= h {
			continue
		}
		q := 0
		if r.Quality.Set {
			q = max(0, min(100, int(r.Quality.V)))
		}
		out = append(out, seat.Candidate{
			X:       x,
			Y:       y,
			Score:   float64(100 - q),
			Quality: q,
			Source:  "oracle",
			Reason:  r.Reason,
		})
	}
	return out
}

func axis(v float64, size int, scale float64) float64 {
	if v <= 1.0 {
		return v * float64(size)
	}
	return v * scale
}

// SeatSource proposes seats by asking the model.
type SeatSource struct {
	client *Client
}

// NewSeatSource returns a candidate source backed by c.
func NewSeatSource(c *Client) *SeatSource { return &SeatSource{client: c} }

// Candidates implements selection.CandidateSource. Single-seat answers are
// ordered by quality; multi-seat answers keep the model's run order.
func (s *SeatSource) Candidates(ctx context.Context, frame *image.RGBA, req selection.Request) (selection.Found, error) {
	seatCount := req.SeatCount
	found := selection.Found{Source: "oracle"}
	shot, err := s.client.Prepare(frame)
	if err != nil {
		return found, fmt.Errorf("%w: %v", selection.ErrOracle, err)
	}
	var ans seatsAnswer
	if err := s.client.Ask(ctx, seatsPrompt(shot.Size, seatCount), shot, 600, &ans); err != nil {
		return found, fmt.Errorf("%w: %v", selection.ErrOracle, err)
	}
	cands := ToCandidates(ans.Seats, shot)
	if seatCount <= 1 {
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Quality > cands[j].Quality })
	}
	if len(cands) == 0 {
		return found, selection.ErrNoCandidates
	}
	found.Seats = cands
	return found, nil
}

func seatsPrompt(size image.Point, seatCount int) string {
	request := "Find up to 5 individual available seats."
	if seatCount > 1 {
		request = fmt.Sprintf("Find %d CONSECUTIVE seats in the SAME ROW (horizontally adjacent colored squares).\n"+
			"Return each seat's coordinates. Seats should be next to each other horizontally.", seatCount)
	}
	return fmt.Sprintf(`Image size: %dx%d pixels.

This is a ticket booking page.
Find %d AVAILABLE seat(s) in the seating grid.

VISUAL CLUES:
- AVAILABLE seats are COLORED squares/boxes (Blue, Green, Purple, Pink, Orange, etc.)
- UNAVAILABLE seats are White, Gray, or Empty outlines.

TASK:
1. Locate the grid of small squares.
2. Find colored squares (filled with color).
3. Select specific seats based on count: %s

OUTPUT FORMAT (JSON only):
{"seats": [
    {"x_px": 1234, "y_px": 567, "quality": 100, "reason": "colored seat"}
]}

CRITICAL:
- Return PIXEL COORDINATES (integers), NOT 0.0-1.0 normalized values.
- Do NOT return empty if you see any colored squares.
- Quality score: Higher for seats closer to the "STAGE" (top) and center.`, size.X, size.Y, seatCount, request)
}
