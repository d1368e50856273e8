package authoring

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// message roles stored in a transcript
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// prefix of client-generated identifiers that the host has not confirmed yet
const TemporaryIDPrefix = "tmp-"

// represents one transcript entry; never mutated after creation
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// represents a lesson inside a section
type Lesson struct {
	Title        string `json:"title"`
	Type         string `json:"type"`
	Duration     string `json:"duration,omitempty"`
	Content      string `json:"content,omitempty"`
	DraftContent string `json:"draftContent,omitempty"`
}

// the most recent unsaved edit wins over saved content
func (l Lesson) EffectiveContent() string {
	if l.DraftContent != "" {
		return l.DraftContent
	}
	return l.Content
}

type Section struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Lessons     []Lesson `json:"lessons"`
}

// the evolving course outline the author builds with the assistant
type CourseStructure struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
}

// returns a deep copy
func (c CourseStructure) Clone() CourseStructure {
	out := CourseStructure{
		Title:       c.Title,
		Description: c.Description,
	}

	if c.Sections == nil {
		return out
	}

	out.Sections = make([]Section, len(c.Sections))
	for i, s := range c.Sections {
		out.Sections[i] = Section{
			Title:       s.Title,
			Description: s.Description,
		}
		if s.Lessons != nil {
			out.Sections[i].Lessons = append(make([]Lesson, 0, len(s.Lessons)), s.Lessons...)
		}
	}

	return out
}

// returns the lesson addressed by key
func (c *CourseStructure) Lesson(key DraftKey) (*Lesson, bool) {
	if key.Section < 0 || key.Section >= len(c.Sections) {
		return nil, false
	}

	lessons := c.Sections[key.Section].Lessons
	if key.Lesson < 0 || key.Lesson >= len(lessons) {
		return nil, false
	}

	return &lessons[key.Lesson], true
}

// reports whether key addresses an existing lesson
func (c *CourseStructure) HasLesson(key DraftKey) bool {
	_, ok := c.Lesson(key)
	return ok
}

// sets DraftContent on every lesson that has a draft; keys that no longer
// address a lesson are ignored
func (c *CourseStructure) ApplyDrafts(drafts map[DraftKey]string) {
	for key, content := range drafts {
		if l, ok := c.Lesson(key); ok {
			l.DraftContent = content
		}
	}
}

// counts lessons across all sections
func (c CourseStructure) LessonCount() int {
	n := 0
	for _, s := range c.Sections {
		n += len(s.Lessons)
	}
	return n
}

// one authoring conversation plus its structured draft
type Session struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Transcript  []Message       `json:"transcript"`
	Draft       CourseStructure `json:"draftState"`
	LastSavedAt time.Time       `json:"lastSavedAt"`
}

// returns a fresh session with no content
func NewSession(id string) *Session {
	return &Session{
		ID:         id,
		Transcript: []Message{},
		Draft:      CourseStructure{Sections: []Section{}},
	}
}

// returns a deep copy
func (s *Session) Clone() *Session {
	out := *s
	if s.Transcript != nil {
		out.Transcript = append(make([]Message, 0, len(s.Transcript)), s.Transcript...)
	}
	out.Draft = s.Draft.Clone()
	return &out
}

// lightweight listing entry for session pickers
type SessionSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// returns a new client-side identifier used until the host confirms creation
func NewTemporaryID() string {
	return TemporaryIDPrefix + uuid.NewString()
}

// reports whether id was generated client-side
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryIDPrefix)
}

// the always-on save indicator
type SaveState int

const (
	StateClean SaveState = iota
	StateDirty
	StateSaving
	StateError
)

func (s SaveState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateSaving:
		return "saving"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
