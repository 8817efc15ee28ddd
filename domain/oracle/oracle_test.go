package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soocke/seatbot-go/config"
	"github.com/soocke/seatbot-go/domain/selection"
)

// chatServer answers every completion request with content and records the
// decoded request bodies.
func chatServer(t *testing.T, status int, content string) (*httptest.Server, *[]chatRequest) {
	t.Helper()
	var seen []chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header %q", got)
		}
		seen = append(seen, req)
		w.WriteHeader(status)
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func testClient(url string) *Client {
	return NewClient(config.Oracle{Provider: ProviderLMStudio, URL: url, Model: "m", APIKey: "test-key", TimeoutSec: 5}, nil)
}

func frame(w, h int) *image.RGBA { return image.NewRGBA(image.Rect(0, 0, w, h)) }

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```{\"a\":1}```":         `{"a":1}`,
		"  {\"a\":1} ":            `{"a":1}`,
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Fatalf("StripFences(%q)=%q want %q", in, got, want)
		}
	}
}

func TestToCandidates_Normalization(t *testing.T) {
	shot := Shot{Frame: frame(1000, 500), Size: image.Pt(500, 250), Scale: 2}
	var raw []RawSeat
	if err := json.Unmarshal([]byte(`[
		{"x_px": 100, "y_px": 50, "x": 0.9, "y": 0.9, "quality": 90},
		{"x": 0.5, "y": 0.5, "quality": "85"},
		{"x": 300, "y": 0.2, "quality": 150},
		{"x_px": 600, "y_px": 10},
		{"reason": "no coordinates"}
	]`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := ToCandidates(raw, shot)
	want := []image.Point{{200, 100}, {500, 250}, {600, 100}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i, p := range want {
		if got[i].Point() != p {
			t.Fatalf("seat %d at %v want %v", i, got[i].Point(), p)
		}
		if got[i].Source != "oracle" {
			t.Fatalf("source %q", got[i].Source)
		}
	}
	if got[1].Quality != 85 || got[1].Score != 15 {
		t.Fatalf("quality/score %+v", got[1])
	}
	if got[2].Quality != 100 {
		t.Fatalf("quality not clamped: %+v", got[2])
	}
}

func TestPrepare_Downscales(t *testing.T) {
	c := NewClient(config.Oracle{MaxImageSide: 100}, nil)
	shot, err := c.Prepare(frame(400, 200))
	if err != nil {
		t.Fatal(err)
	}
	if shot.Size != image.Pt(100, 50) || shot.Scale != 4 {
		t.Fatalf("size %v scale %v", shot.Size, shot.Scale)
	}
	if len(shot.png) == 0 {
		t.Fatalf("no encoded payload")
	}
}

func TestNewClient_GroqDefaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", " secret ")
	c := NewClient(config.Oracle{Provider: "groq", URL: lmStudioURL, Model: lmStudioModel}, nil)
	if c.url != groqURL || c.model != groqModel || c.apiKey != "secret" {
		t.Fatalf("groq defaults not applied: %s %s %q", c.url, c.model, c.apiKey)
	}
}

func TestSeatSource_OrdersSingleSeatByQuality(t *testing.T) {
	srv, seen := chatServer(t, http.StatusOK, "```json\n"+`{"seats":[{"x_px":10,"y_px":10,"quality":40},{"x_px":20,"y_px":10,"quality":95}]}`+"\n```")
	found, err := NewSeatSource(testClient(srv.URL)).Candidates(context.Background(), frame(200, 100), selection.Request{SeatCount: 1})
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(found.Seats) != 2 || found.Seats[0].X != 20 {
		t.Fatalf("seats %v", found.Seats)
	}
	req := (*seen)[0]
	if req.Model != "m" || len(req.Messages) != 2 {
		t.Fatalf("request %+v", req)
	}
	parts, _ := json.Marshal(req.Messages[1].Content)
	if !strings.Contains(string(parts), "data:image/png;base64,") || !strings.Contains(string(parts), "Image size: 200x100") {
		t.Fatalf("user message missing image or size: %s", parts)
	}
}

func TestSeatSource_MultiSeatKeepsOrder(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, `{"seats":[{"x_px":10,"y_px":10,"quality":40},{"x_px":22,"y_px":10,"quality":95}]}`)
	found, err := NewSeatSource(testClient(srv.URL)).Candidates(context.Background(), frame(200, 100), selection.Request{SeatCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	if found.Seats[0].X != 10 || found.Seats[1].X != 22 {
		t.Fatalf("order changed: %v", found.Seats)
	}
}

func TestSeatSource_Failures(t *testing.T) {
	srv, _ := chatServer(t, http.StatusInternalServerError, "boom")
	if _, err := NewSeatSource(testClient(srv.URL)).Candidates(context.Background(), frame(50, 50), selection.Request{SeatCount: 1}); !errors.Is(err, selection.ErrOracle) {
		t.Fatalf("expected oracle error, got %v", err)
	}
	empty, _ := chatServer(t, http.StatusOK, `{"seats":[]}`)
	if _, err := NewSeatSource(testClient(empty.URL)).Candidates(context.Background(), frame(50, 50), selection.Request{SeatCount: 1}); !errors.Is(err, selection.ErrNoCandidates) {
		t.Fatalf("expected no candidates, got %v", err)
	}
	junk, _ := chatServer(t, http.StatusOK, "I see some seats")
	if _, err := NewSeatSource(testClient(junk.URL)).Candidates(context.Background(), frame(50, 50), selection.Request{SeatCount: 1}); !errors.Is(err, selection.ErrOracle) {
		t.Fatalf("expected oracle error for prose, got %v", err)
	}
}

func TestVerifier(t *testing.T) {
	yes, seen := chatServer(t, http.StatusOK, `{"selected": true}`)
	ok, err := NewVerifier(testClient(yes.URL)).Verify(context.Background(), selection.Check{After: frame(40, 40), SeatCount: 2})
	if err != nil || !ok {
		t.Fatalf("verify: %v %v", ok, err)
	}
	parts, _ := json.Marshal((*seen)[0].Messages[1].Content)
	if !strings.Contains(string(parts), "2석") {
		t.Fatalf("prompt lacks seat count phrase: %s", parts)
	}
	missing, _ := chatServer(t, http.StatusOK, `{}`)
	if _, err := NewVerifier(testClient(missing.URL)).Verify(context.Background(), selection.Check{After: frame(40, 40), SeatCount: 1}); !errors.Is(err, selection.ErrVerificationAmbiguous) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
}

type recordingClicker struct{ pts []image.Point }

func (r *recordingClicker) Click(x, y int) error {
	r.pts = append(r.pts, image.Pt(x, y))
	return nil
}

func TestProceeder_ClicksLocatedButton(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, `{"x": 0.5, "y": 0.25}`)
	clk := &recordingClicker{}
	p := NewProceeder(testClient(srv.URL), clk, "좌석선택완료", nil)
	if err := p.Proceed(context.Background(), frame(200, 100), image.Rect(10, 20, 210, 120)); err != nil {
		t.Fatalf("proceed: %v", err)
	}
	if len(clk.pts) != 1 || clk.pts[0] != image.Pt(110, 45) {
		t.Fatalf("clicks %v", clk.pts)
	}
}

func TestLocate_NotFound(t *testing.T) {
	srv, _ := chatServer(t, http.StatusOK, `{"x": 0, "y": 0}`)
	if _, err := testClient(srv.URL).Locate(context.Background(), frame(100, 100), "pay"); !errors.Is(err, ErrNotLocated) {
		t.Fatalf("expected not located, got %v", err)
	}
}
