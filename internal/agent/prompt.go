package agent

import (
	"encoding/json"
	"strings"

	"codeberg.org/coursepilot/server/internal/authoring"
)

// assembles the complete system prompt
func buildSystemPrompt(ctx SystemPromptContext) string {
	var builder strings.Builder

	// section 1: current outline
	builder.WriteString("═══════════════════════════════════════════════════════════\n")
	builder.WriteString("CURRENT COURSE OUTLINE\n")
	builder.WriteString("═══════════════════════════════════════════════════════════\n\n")

	if len(ctx.Draft.Sections) == 0 && ctx.Draft.Title == "" {
		builder.WriteString("(empty - the author has not started an outline yet)\n\n")
	} else {
		builder.WriteString(outlineJSON(ctx.Draft))
		builder.WriteString("\n\n")
	}

	// section 2: instructions
	builder.WriteString("═══════════════════════════════════════════════════════════\n")
	builder.WriteString("INSTRUCTIONS\n")
	builder.WriteString("═══════════════════════════════════════════════════════════\n\n")
	builder.WriteString(getInstructions())

	return builder.String()
}

// the outline as the model sees it: unsaved lesson edits replace the
// saved content
func outlineJSON(draft authoring.CourseStructure) string {
	view := draft.Clone()
	for i := range view.Sections {
		for j := range view.Sections[i].Lessons {
			l := &view.Sections[i].Lessons[j]
			l.Content = l.EffectiveContent()
			l.DraftContent = ""
		}
	}

	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

// returns the core instructions
func getInstructions() string {
	return `You are a course authoring assistant.

	You help the author plan and write an online course through conversation.

	Guidelines:
	- Build upon the CURRENT COURSE OUTLINE when the author asks for changes
	- Keep sections and lessons the author did not mention unchanged, including their content
	- Lesson types are "text", "video", "quiz" or "exercise"
	- Ask a short clarifying question when the request is too vague to act on

	Response format:
	Reply with ONLY a JSON object, no markdown:
	{
	  "message": "your reply to the author",
	  "course": { "title": "...", "description": "...", "sections": [ { "title": "...", "description": "...", "lessons": [ { "title": "...", "type": "text", "duration": "10m", "content": "..." } ] } ] }
	}
	Omit "course" when the outline does not change.
`
}
