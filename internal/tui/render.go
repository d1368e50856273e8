package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"codeberg.org/coursepilot/server/internal/authoring"
)

func renderTranscript(transcript []authoring.Message, renderer *glamour.TermRenderer) string {
	if len(transcript) == 0 {
		return infoStyle.Render("ready! describe your course below and press enter.")
	}

	var b strings.Builder
	for _, msg := range transcript {
		switch msg.Role {
		case authoring.RoleUser:
			b.WriteString(userStyle.Render("you: " + msg.Content))
			b.WriteString("\n\n")

		case authoring.RoleAssistant:
			b.WriteString(renderMarkdown(msg.Content, renderer))
			b.WriteString("\n")

		default:
			b.WriteString(systemStyle.Render(msg.Content))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func renderMarkdown(content string, renderer *glamour.TermRenderer) string {
	if renderer == nil {
		return content + "\n"
	}
	out, err := renderer.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

// lessons with unsaved edits are marked
func renderOutline(course authoring.CourseStructure) string {
	if len(course.Sections) == 0 {
		return infoStyle.Render("no outline yet. ask the assistant to draft one.")
	}

	var b strings.Builder
	if course.Title != "" {
		b.WriteString(titleStyle.Render(course.Title))
		b.WriteString("\n")
	}
	if course.Description != "" {
		b.WriteString(infoStyle.Render(course.Description))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for i, section := range course.Sections {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("%d. %s", i+1, section.Title)))
		b.WriteString("\n")

		for j, lesson := range section.Lessons {
			key := authoring.DraftKey{Section: i, Lesson: j}
			line := fmt.Sprintf("[%s] %s (%s)", key, lesson.Title, lesson.Type)
			if lesson.Duration != "" {
				line += " " + lesson.Duration
			}
			if lesson.DraftContent != "" {
				line += " " + draftMarkStyle.Render("✎ draft")
			}
			b.WriteString(lessonStyle.Render(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}
