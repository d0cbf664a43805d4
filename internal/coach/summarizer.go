package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Summarizer condenses a briefing prompt into short prose.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

const summarizerTimeout = 8 * time.Second

// HTTPSummarizer posts the prompt to an external completion endpoint.
type HTTPSummarizer struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewHTTPSummarizer builds the client; url must be non-empty.
func NewHTTPSummarizer(url, apiKey, model string) *HTTPSummarizer {
	return &HTTPSummarizer{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: summarizerTimeout},
	}
}

type summarizeRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type summarizeResponse struct {
	Text string `json:"text"`
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(summarizeRequest{Model: s.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode summarizer request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build summarizer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call summarizer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("summarizer returned status %d", resp.StatusCode)
	}

	var out summarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summarizer response: %w", err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("summarizer returned empty text")
	}
	return out.Text, nil
}

// Service produces the final coach text: summarizer output when one is
// configured and healthy, the rendered briefing otherwise.
type Service struct {
	summarizer Summarizer // nil when unconfigured
	logger     *slog.Logger
}

// NewService wires the coach; summarizer may be nil.
func NewService(summarizer Summarizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{summarizer: summarizer, logger: logger}
}

// Summary builds the briefing and returns the coach text along with the
// structured sections.
func (s *Service) Summary(ctx context.Context, in Input) (string, Briefing) {
	briefing := BuildBriefing(in)
	fallback := briefing.Render()
	if s.summarizer == nil {
		return fallback, briefing
	}

	text, err := s.summarizer.Summarize(ctx, briefing.Prompt(in.LastComment))
	if err != nil {
		s.logger.Warn("summarizer failed, using fallback", "error", err)
		return fallback, briefing
	}
	return text, briefing
}
