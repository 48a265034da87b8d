// Package vision talks to the Ollama inference service that reads license
// plates out of cropped photo regions.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const plateSystemPrompt = `
You are a technical OCR system for automated traffic enforcement processing.
This is a legitimate law enforcement application for speed violation detection.
Extract ONLY the alphanumeric characters visible on the vehicle license plate.

Technical requirements:
- Identify rectangular plate area with alphanumeric characters
- Extract character sequence (letters and numbers)
- Return data as structured JSON format
- Process all visible text on the license plate area

Output format (JSON only):
{
  "vehicle": {
    "plate": "CHARACTERS_FOUND"
  }
}

Return only the JSON object. No explanations.
`

const plateUserPrompt = "Extrae la placa en formato JSON."

// GenerationOptions maps onto Ollama's per-request options block.
type GenerationOptions struct {
	NumCtx      int
	NumPredict  int
	Temperature float64
	TopP        float64
}

// Client is a thin JSON client for the Ollama chat and generate endpoints.
// Every call carries the per-request timeout configured on the HTTP client.
type Client struct {
	httpClient *http.Client
	host       string
	model      string
	keepAlive  string
	opts       GenerationOptions
}

func NewClient(host, model, keepAlive string, timeout time.Duration, opts GenerationOptions) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		host:       strings.TrimRight(host, "/"),
		model:      model,
		keepAlive:  keepAlive,
		opts:       opts,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model     string         `json:"model"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Stream    bool           `json:"stream"`
	Options   map[string]any `json:"options"`
	Messages  []chatMessage  `json:"messages"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// ChatImage submits one base64-encoded plate crop with the fixed prompts and
// returns the model's raw message content.
func (c *Client) ChatImage(ctx context.Context, base64Image string) (string, error) {
	reqBody := chatRequest{
		Model:     c.model,
		KeepAlive: c.keepAlive,
		Stream:    false,
		Options: map[string]any{
			"num_ctx":     c.opts.NumCtx,
			"num_predict": c.opts.NumPredict,
			"temperature": c.opts.Temperature,
			"top_p":       c.opts.TopP,
			"format":      "json",
		},
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(plateSystemPrompt)},
			{Role: "user", Content: plateUserPrompt, Images: []string{base64Image}},
		},
	}

	body, err := c.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if resp.Message.Content == "" {
		return "", fmt.Errorf("chat response has no message content")
	}
	return resp.Message.Content, nil
}

// Ping issues a minimal no-op generate call so the model stays resident.
func (c *Client) Ping(ctx context.Context) error {
	reqBody := map[string]any{
		"model":      c.model,
		"prompt":     "ping",
		"keep_alive": c.keepAlive,
		"stream":     false,
		"options": map[string]any{
			"num_predict": 1,
		},
	}
	_, err := c.post(ctx, "/api/generate", reqBody)
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// ExtractJSON parses the model output as JSON, tolerating surrounding prose
// by falling back to the first top-level {...} block.
func ExtractJSON(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response: %s", truncate(text, 120))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("invalid JSON in response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// KeepAlive pings the inference service on a fixed interval so the model is
// not unloaded between real requests. Failures are logged, never surfaced.
type KeepAlive struct {
	client   *Client
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewKeepAlive(client *Client, interval time.Duration, log zerolog.Logger) *KeepAlive {
	return &KeepAlive{
		client:   client,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (k *KeepAlive) Start() {
	go func() {
		defer close(k.done)
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()
		for {
			select {
			case <-k.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := k.client.Ping(ctx); err != nil {
					k.log.Warn().Err(err).Msg("keep-alive ping failed")
				}
				cancel()
			}
		}
	}()
}

func (k *KeepAlive) Stop() {
	close(k.stop)
	<-k.done
}
