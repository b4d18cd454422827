package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type openAIClient struct {
	cfg  OpenAIConfig
	http *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &openAIClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *openAIClient) ModelVersion() string {
	return c.cfg.Model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) Summarize(ctx context.Context, transcriptText string) ([]byte, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		Temperature: 0.1,
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "user", Content: BuildPrompt(transcriptText)},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, ErrThrottled
	case resp.StatusCode != http.StatusOK:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("model call failed with status %d: %s", resp.StatusCode, payload)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode model response envelope: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}
	return []byte(strings.TrimSpace(out.Choices[0].Message.Content)), nil
}

// BuildPrompt formats the summarization instruction. The model must return
// only the JSON object; anything else fails shape validation downstream.
func BuildPrompt(transcriptText string) string {
	return fmt.Sprintf(`Analyze the following meeting transcript and respond with a structured summary.

Meeting Transcript:
%s

Respond with a JSON object of exactly this structure:

{
  "summary_text": "A concise 2-3 paragraph summary of the meeting",
  "actions": [
    {"id": "act_001", "description": "Clear, actionable task description", "owner": "Person responsible (if mentioned)", "source_timestamp_ms": 0}
  ],
  "decisions": [
    {"id": "dec_001", "decision": "Clear statement of what was decided", "source_timestamp_ms": 0}
  ],
  "key_topics": ["topic1", "topic2"],
  "participants": ["participant1", "participant2"]
}

Requirements:
- Extract only explicit action items that were actually discussed
- Include only clear decisions that were made during the meeting
- Use unique ids (act_001, act_002, ... and dec_001, dec_002, ...)
- Return only valid JSON, no additional text or formatting`, transcriptText)
}
