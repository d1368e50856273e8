// Package agent turns one chat turn of an authoring session into a model
// call and the model's answer into a reply plus an optional new outline.
package agent

import (
	"context"
	"fmt"

	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/llm"
)

var _ gateway.Generator = (*Agent)(nil)

func New(generator llm.TextGenerator) *Agent {
	return &Agent{generator: generator}
}

func (a *Agent) Model() string {
	return a.generator.Model()
}

func (a *Agent) Generate(ctx context.Context, req gateway.GenerateRequest) (*gateway.GenerateResponse, error) {
	systemPrompt := buildSystemPrompt(SystemPromptContext{Draft: req.Draft})

	response, err := a.generator.GenerateText(ctx, llm.TextGenerationRequest{
		SystemPrompt: systemPrompt,
		Messages:     buildMessages(req.Transcript, req.Message),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	reply := analyzeResponse(response.Text)

	return &gateway.GenerateResponse{
		Message:      reply.Message,
		UpdatedDraft: reply.Course,
	}, nil
}
