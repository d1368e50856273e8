package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/gateway"
	"codeberg.org/coursepilot/server/internal/llm"
)

// implements llm.TextGenerator for testing
type mockLLM struct {
	generateTextFunc func(ctx context.Context, req llm.TextGenerationRequest) (string, error)
	requests         []llm.TextGenerationRequest
}

func (m *mockLLM) GenerateText(ctx context.Context, req llm.TextGenerationRequest) (*llm.TextGenerationResponse, error) {
	m.requests = append(m.requests, req)

	text := `{"message": "ok"}`
	if m.generateTextFunc != nil {
		var err error
		text, err = m.generateTextFunc(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	return &llm.TextGenerationResponse{Text: text}, nil
}

func (m *mockLLM) Model() string {
	return "mock-model"
}

func msg(role authoring.Role, content string) authoring.Message {
	return authoring.Message{Role: role, Content: content, Timestamp: time.Now()}
}

func TestGenerateReturnsUpdatedOutline(t *testing.T) {
	gen := &mockLLM{
		generateTextFunc: func(_ context.Context, req llm.TextGenerationRequest) (string, error) {
			return "```json\n" + `{
				"message": "Added a testing section.",
				"course": {"title": "Go", "sections": [{"title": "Testing", "lessons": [{"title": "Table tests", "type": "text"}]}]}
			}` + "\n```", nil
		},
	}

	a := New(gen)
	resp, err := a.Generate(context.Background(), gateway.GenerateRequest{
		SessionID: "s1",
		Message:   "add a testing section",
		Draft:     authoring.CourseStructure{Title: "Go", Sections: []authoring.Section{}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Added a testing section.", resp.Message)
	require.NotNil(t, resp.UpdatedDraft)
	require.Len(t, resp.UpdatedDraft.Sections, 1)
	assert.Equal(t, "Table tests", resp.UpdatedDraft.Sections[0].Lessons[0].Title)
	assert.Equal(t, "mock-model", a.Model())
}

func TestGeneratePlainTextReply(t *testing.T) {
	gen := &mockLLM{
		generateTextFunc: func(context.Context, llm.TextGenerationRequest) (string, error) {
			return "Who is the course for?", nil
		},
	}

	resp, err := New(gen).Generate(context.Background(), gateway.GenerateRequest{Message: "make a course"})
	require.NoError(t, err)
	assert.Equal(t, "Who is the course for?", resp.Message)
	assert.Nil(t, resp.UpdatedDraft)
}

func TestGenerateError(t *testing.T) {
	gen := &mockLLM{
		generateTextFunc: func(context.Context, llm.TextGenerationRequest) (string, error) {
			return "", authoring.ErrTransientIO
		},
	}

	_, err := New(gen).Generate(context.Background(), gateway.GenerateRequest{Message: "hi"})
	assert.True(t, errors.Is(err, authoring.ErrTransientIO))
}

func TestSystemPromptShowsEffectiveLessonContent(t *testing.T) {
	gen := &mockLLM{}
	draft := authoring.CourseStructure{
		Title: "Go",
		Sections: []authoring.Section{{
			Title: "Basics",
			Lessons: []authoring.Lesson{
				{Title: "Hello", Type: "text", Content: "saved body", DraftContent: "unsaved body"},
			},
		}},
	}

	_, err := New(gen).Generate(context.Background(), gateway.GenerateRequest{Message: "shorten it", Draft: draft})
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	prompt := gen.requests[0].SystemPrompt
	assert.Contains(t, prompt, "CURRENT COURSE OUTLINE")
	assert.Contains(t, prompt, "unsaved body")
	assert.NotContains(t, prompt, "saved body\"")
	assert.NotContains(t, prompt, "draftContent")
	assert.Contains(t, prompt, "Reply with ONLY a JSON object")

	// the draft handed in is not modified
	assert.Equal(t, "unsaved body", draft.Sections[0].Lessons[0].DraftContent)
}

func TestSystemPromptForEmptyOutline(t *testing.T) {
	prompt := buildSystemPrompt(SystemPromptContext{})
	assert.Contains(t, prompt, "has not started an outline")
}

func TestBuildMessagesAlternates(t *testing.T) {
	transcript := []authoring.Message{
		msg(authoring.RoleAssistant, "welcome"),
		msg(authoring.RoleUser, "first"),
		msg(authoring.RoleSystem, "session renamed"),
		msg(authoring.RoleUser, "second, after a failed reply"),
		msg(authoring.RoleAssistant, "answer"),
	}

	got := buildMessages(transcript, "third")

	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "first\n\nsecond, after a failed reply"},
		{Role: "assistant", Content: "answer"},
		{Role: "user", Content: "third"},
	}, got)
}

func TestBuildMessagesKeepsRecentHistory(t *testing.T) {
	var transcript []authoring.Message
	for i := 0; i < maxHistoryMessages+10; i++ {
		role := authoring.RoleUser
		if i%2 == 1 {
			role = authoring.RoleAssistant
		}
		transcript = append(transcript, msg(role, strings.Repeat("x", i+1)))
	}

	got := buildMessages(transcript, "latest")
	assert.LessOrEqual(t, len(got), maxHistoryMessages+1)
	assert.Equal(t, "latest", got[len(got)-1].Content)
	assert.Equal(t, "user", got[0].Role)
}

func TestAnalyzeResponse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		message   string
		hasCourse bool
	}{
		{"bare object", `{"message":"hi"}`, "hi", false},
		{"object with prose", `Sure! {"message":"done","course":{"title":"T"}} Enjoy.`, "done", true},
		{"course only", `{"course":{"title":"T","sections":[]}}`, "I updated the course outline.", true},
		{"not json", "just words", "just words", false},
		{"unrelated json", `{"foo": 1}`, `{"foo": 1}`, false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := analyzeResponse(tt.input)
			assert.Equal(t, tt.message, reply.Message)
			assert.Equal(t, tt.hasCourse, reply.Course != nil)
			if reply.Course != nil {
				assert.NotNil(t, reply.Course.Sections)
			}
		})
	}
}
