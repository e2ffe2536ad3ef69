// Package generation provides the text-generation provider client and the
// prompt templates used for event enrichment and post ingestion.
package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/civicpulse/internal/config"
)

const httpTimeout = 60 * time.Second

// Client calls an OpenAI-compatible /chat/completions endpoint. Responses are
// treated as plain text; callers sanitize them before using them as labels or
// lists. Transport or format failures are upstream-dependency errors — the
// client never fabricates fallback content.
type Client struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	modelName string
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
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

// NewClient creates a generation client from configuration.
func NewClient() (*Client, error) {
	apiKey := config.GetLLMAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("CIVICPULSE_LLM_API_KEY is required for the generation provider")
	}

	return &Client{
		client:    &http.Client{Timeout: httpTimeout},
		baseURL:   config.GetGenerationBaseURL(),
		apiKey:    apiKey,
		modelName: config.GetGenerationModel(),
	}, nil
}

// Generate sends a single-user-message prompt and returns the raw response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:    c.modelName,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send generation request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodySnippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generation API error (model=%s, status=%d): %s",
			c.modelName, resp.StatusCode, strings.TrimSpace(string(bodySnippet)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode generation response from %s: %w", c.baseURL, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("generation API returned no choices (model=%s)", c.modelName)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Sanitize trims whitespace and surrounding quote characters from a generated
// response so it can be used as a label or list item.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}

// SplitList parses a comma-separated generation response into trimmed,
// non-empty items.
func SplitList(s string) []string {
	parts := strings.Split(Sanitize(s), ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = Sanitize(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}
