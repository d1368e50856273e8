package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/config"
)

func TestNewAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic(AnthropicConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestConfigFromServer(t *testing.T) {
	cfg := ConfigFromServer(&config.ServerConfig{
		AnthropicKey:       "key",
		GeneratorModel:     "model",
		GeneratorMaxTokens: 100,
		GeneratorTemp:      0.2,
	})

	assert.Equal(t, AnthropicConfig{APIKey: "key", Model: "model", MaxTokens: 100, Temperature: 0.2}, cfg)
}

func TestGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Equal(t, "be brief", req.System)
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"content": [{"type": "text", "text": "  hello "}, {"type": "text", "text": "there"}],
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	a, err := NewAnthropic(AnthropicConfig{APIKey: "test-key", Model: "claude-test", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := a.GenerateText(context.Background(), TextGenerationRequest{
		SystemPrompt: "be brief",
		Messages:     []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 3}, resp.Usage)
	assert.Equal(t, "claude-test", a.Model())
}

func TestGenerateTextErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"overloaded", 529, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error"}`))
			}))
			defer srv.Close()

			a, err := NewAnthropic(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = a.GenerateText(context.Background(), TextGenerationRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
			require.Error(t, err)
			assert.Equal(t, tt.transient, authoring.Classify(err) == authoring.KindTransientIO)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestGenerateTextEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": []}`))
	}))
	defer srv.Close()

	a, err := NewAnthropic(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = a.GenerateText(context.Background(), TextGenerationRequest{})
	assert.Error(t, err)
}
