package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"codeberg.org/coursepilot/server/internal/authoring"
)

const (
	anthropicBaseURL   = "https://api.anthropic.com"
	anthropicVersion   = "2023-06-01"
	defaultModel       = "claude-sonnet-4-20250514"
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7

	// requests per second and burst across all authors
	defaultRate  = 5
	defaultBurst = 10
)

var ErrMissingAPIKey = errors.New("anthropic api key is required")

// shared HTTP client for Anthropic API calls
var anthropicHTTPClient = &http.Client{
	Timeout: 120 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
}

type messagesResponse struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Role    string    `json:"role"`
	Content []content `json:"content"`
	Model   string    `json:"model"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type AnthropicConfig struct {
	APIKey      string
	Model       string  // e.g., "claude-sonnet-4-20250514"
	MaxTokens   int     // max tokens for response
	Temperature float32 // 0.0 to 1.0

	// overrides the API host (tests)
	BaseURL string

	RequestsPerSecond float64
	Burst             int
}

type Anthropic struct {
	config     AnthropicConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ TextGenerator = (*Anthropic)(nil)

func NewAnthropic(config AnthropicConfig) (*Anthropic, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.BaseURL == "" {
		config.BaseURL = anthropicBaseURL
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = defaultRate
	}
	if config.Burst == 0 {
		config.Burst = defaultBurst
	}

	return &Anthropic{
		config:     config,
		httpClient: anthropicHTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}, nil
}

func (a *Anthropic) Model() string {
	return a.config.Model
}

func (a *Anthropic) GenerateText(ctx context.Context, req TextGenerationRequest) (*TextGenerationResponse, error) {
	// determine max tokens (use request value or fall back to config)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.config.MaxTokens
	}

	reqBody := messagesRequest{
		Model:       a.config.Model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: a.config.Temperature,
		Messages:    req.Messages,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.config.BaseURL, "/")+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	// rate limiting
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w: %w", authoring.ErrTransientIO, err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		err := fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))

		// overloaded or rate limited upstream
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w", authoring.ErrTransientIO, err)
		}
		return nil, err
	}

	var apiResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var text strings.Builder
	for _, c := range apiResp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("no content in response")
	}

	return &TextGenerationResponse{
		Text: strings.TrimSpace(text.String()),
		Usage: Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
		},
	}, nil
}
