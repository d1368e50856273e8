package agent

import (
	"encoding/json"
	"strings"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/llm"
)

// maps the transcript plus the new message onto model turns. The model
// needs strictly alternating turns starting with the author, so
// consecutive turns of one role are merged and system notes are dropped.
func buildMessages(transcript []authoring.Message, message string) []llm.Message {
	if len(transcript) > maxHistoryMessages {
		transcript = transcript[len(transcript)-maxHistoryMessages:]
	}

	out := make([]llm.Message, 0, len(transcript)+1)
	appendTurn := func(role, content string) {
		if content == "" {
			return
		}
		if len(out) == 0 && role != string(authoring.RoleUser) {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			return
		}
		out = append(out, llm.Message{Role: role, Content: content})
	}

	for _, msg := range transcript {
		switch msg.Role {
		case authoring.RoleUser, authoring.RoleAssistant:
			appendTurn(string(msg.Role), msg.Content)
		}
	}
	appendTurn(string(authoring.RoleUser), message)

	return out
}

// reads the model's JSON reply; anything that is not the expected object
// is treated as a plain chat message
func analyzeResponse(response string) modelReply {
	response = strings.TrimSpace(response)
	if response == "" {
		return modelReply{}
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(extractJSON(response)), &reply); err != nil || (reply.Message == "" && reply.Course == nil) {
		return modelReply{Message: response}
	}

	if reply.Course != nil {
		if reply.Course.Sections == nil {
			reply.Course.Sections = []authoring.Section{}
		}
		if reply.Message == "" {
			reply.Message = "I updated the course outline."
		}
	}

	return reply
}

// extractJSON returns the object inside a markdown fence, or the span
// from the first '{' to the last '}'.
func extractJSON(response string) string {
	if code := extractFromFence(response); code != "" {
		return code
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return response
	}
	return response[start : end+1]
}

// extracts content from a single markdown fence pair.
// Returns empty string if extraction fails.
func extractFromFence(response string) string {
	startIdx := strings.Index(response, "```")
	if startIdx == -1 {
		return ""
	}

	// find end of opening fence line (skip language identifier)
	afterStart := startIdx + 3
	newlineIdx := strings.Index(response[afterStart:], "\n")
	if newlineIdx == -1 {
		return ""
	}
	codeStart := afterStart + newlineIdx + 1

	// find closing fence
	endIdx := strings.Index(response[codeStart:], "```")
	if endIdx == -1 {
		return ""
	}

	return strings.TrimSpace(response[codeStart : codeStart+endIdx])
}
