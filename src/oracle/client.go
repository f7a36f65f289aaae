// Package oracle talks to the language model that classifies source lines
// and rewrites correction instructions. It wraps the Anthropic Messages API
// over plain HTTP so the rest of the application only sees prompt in, text
// out.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/username/finloader/backend/src/config"
	"github.com/username/finloader/backend/src/logger"
)

const anthropicAPIVersion = "2023-06-01"

// ErrOracleUnavailable wraps transport or rate-limit failures that survived
// the retry loop.
var ErrOracleUnavailable = errors.New("oracle unavailable")

// Client is the shared HTTP client for every model role.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	limiter    *rate.Limiter
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewClient(cfg *config.AppConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.OracleTimeout},
		baseURL:    cfg.OracleBaseURL,
		apiKey:     cfg.OracleAPIKey,
		maxRetries: cfg.OracleMaxRetries,
		// The upstream API rate-limits per key; pace our own calls so batch
		// reprocessing does not trip it.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

// Complete sends one system+user exchange and returns the model's text.
func (c *Client) Complete(ctx context.Context, model, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: no API key configured", ErrOracleUnavailable)
	}

	payload, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: 8192,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal oracle request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			logger.L.Warn("Retrying oracle call", "model", model, "attempt", attempt, "backoff", backoff.String())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, retriable, err := c.send(ctx, payload, model)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retriable {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, lastErr)
}

func (c *Client) send(ctx context.Context, payload []byte, model string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to create oracle request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", true, fmt.Errorf("failed to read oracle response: %w", err)
	}

	// 429 and 5xx are worth retrying, client errors are not.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to parse oracle response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("oracle error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}

	var out bytes.Buffer
	for _, block := range parsed.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", false, fmt.Errorf("oracle returned no text content for model %s", model)
	}

	logger.L.Debug("Oracle call completed", "model", model, "responseLength", out.Len())
	return out.String(), false, nil
}
