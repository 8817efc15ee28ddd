// Package oracle talks to an OpenAI-compatible vision model for seat
// proposals, selection checks and button lookup.
package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/soocke/seatbot-go/config"
)

// Provider endpoints.
const (
	ProviderLMStudio = "lmstudio"
	ProviderGroq     = "groq"

	lmStudioURL   = "http://localhost:12345/v1/chat/completions"
	lmStudioModel = "local-model"
	groqURL       = "https://api.groq.com/openai/v1/chat/completions"
	groqModel     = "meta-llama/llama-4-scout-17b-16e-instruct"
	groqKeyEnv    = "GROQ_API_KEY"
)

const systemPrompt = "You are a JSON API. Output ONLY valid JSON. Never include explanations, markdown, or code blocks."

var fenceRe = regexp.MustCompile("```(?:json)?\\s*")

// Client sends one image plus a prompt and decodes a JSON answer.
type Client struct {
	url        string
	model      string
	apiKey     string
	maxSide    int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client from the oracle settings. Empty URL, model or key
// fall back to the provider defaults.
func NewClient(cfg config.Oracle, logger *slog.Logger) *Client {
	url, model, key := cfg.URL, cfg.Model, cfg.APIKey
	switch strings.ToLower(cfg.Provider) {
	case ProviderGroq:
		if url == "" || url == lmStudioURL {
			url = groqURL
		}
		if model == "" || model == lmStudioModel {
			model = groqModel
		}
		if key == "" {
			key = strings.TrimSpace(os.Getenv(groqKeyEnv))
		}
	default:
		if url == "" {
			url = lmStudioURL
		}
		if model == "" {
			model = lmStudioModel
		}
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		model:      model,
		apiKey:     key,
		maxSide:    cfg.MaxImageSide,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Shot is an image prepared for the model: Size is what the model sees and
// Scale maps model pixels back to frame pixels.
type Shot struct {
	Frame image.Image
	Size  image.Point
	Scale float64
	png   []byte
}

// Prepare downscales frame to fit the configured max side and encodes it.
func (c *Client) Prepare(frame image.Image) (Shot, error) {
	b := frame.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Shot{}, errors.New("oracle: empty frame")
	}
	sent := frame
	if c.maxSide > 0 && (b.Dx() > c.maxSide || b.Dy() > c.maxSide) {
		sent = imaging.Fit(frame, c.maxSide, c.maxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, sent, imaging.PNG); err != nil {
		return Shot{}, fmt.Errorf("encode frame: %w", err)
	}
	sb := sent.Bounds()
	return Shot{
		Frame: frame,
		Size:  image.Pt(sb.Dx(), sb.Dy()),
		Scale: float64(b.Dx()) / float64(sb.Dx()),
		png:   buf.Bytes(),
	}, nil
}

// Ask sends prompt with the shot and decodes the JSON answer into out.
func (c *Client) Ask(ctx context.Context, prompt string, shot Shot, maxTokens int, out any) error {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(shot.png),
				}},
			}},
		},
		Temperature: 0,
		MaxTokens:   maxTokens,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if chat.Error != nil {
		return fmt.Errorf("oracle API error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return errors.New("no response from oracle")
	}
	content := chat.Choices[0].Message.Content
	if c.logger != nil {
		c.logger.Debug("oracle.response", "model", c.model, "elapsed", time.Since(start), "content", truncate(content, 300))
	}
	if err := json.Unmarshal([]byte(StripFences(content)), out); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	return nil
}

// StripFences removes markdown code fences around a JSON answer.
func StripFences(s string) string {
	s = fenceRe.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.ReplaceAll(s, "```", ""))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
