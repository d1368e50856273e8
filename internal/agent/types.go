package agent

import (
	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/llm"
)

// earlier turns beyond this are not sent to the model
const maxHistoryMessages = 40

// drafts the assistant's chat replies and course outline changes
type Agent struct {
	generator llm.TextGenerator
}

// holds all the context needed to build the system prompt
type SystemPromptContext struct {
	Draft authoring.CourseStructure
}

// the JSON object the model is asked to reply with
type modelReply struct {
	Message string                     `json:"message"`
	Course  *authoring.CourseStructure `json:"course,omitempty"`
}
