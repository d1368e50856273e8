package llm

import "context"

// produces text from a conversation
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextGenerationRequest) (*TextGenerationResponse, error)
	Model() string
}

// represents a single conversation turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TextGenerationRequest struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int // 0 uses the configured default
}

type TextGenerationResponse struct {
	Text  string
	Usage Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}
