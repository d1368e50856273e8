package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"codeberg.org/coursepilot/server/internal/authoring"
)

type memorySession struct {
	session *authoring.Session
	drafts  map[authoring.DraftKey]string
	updated time.Time
}

// Memory keeps sessions in process memory. authorctl uses it with
// --offline and the package tests use it as the host stand-in.
type Memory struct {
	sessions map[string]*memorySession
	mu       sync.RWMutex
	now      func() time.Time
}

var _ Gateway = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*memorySession),
		now:      time.Now,
	}
}

// returns a new random session ID
func generateSessionID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func (m *Memory) get(op, sessionID string) (*memorySession, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, sessionID, authoring.ErrNotFound)
	}
	return s, nil
}

func (m *Memory) CreateSession(_ context.Context, title string) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	s := authoring.NewSession(id)
	s.Title = title

	m.mu.Lock()
	m.sessions[id] = &memorySession{
		session: s,
		drafts:  make(map[authoring.DraftKey]string),
		updated: m.now(),
	}
	m.mu.Unlock()

	return id, nil
}

func (m *Memory) Save(_ context.Context, sessionID string, transcript []authoring.Message, draft authoring.CourseStructure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get("save session", sessionID)
	if err != nil {
		return err
	}

	now := m.now()
	s.session.Transcript = append([]authoring.Message{}, transcript...)
	s.session.Draft = draft.Clone()
	s.session.LastSavedAt = now
	s.updated = now

	return nil
}

func (m *Memory) LoadSession(_ context.Context, sessionID string) (*authoring.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, err := m.get("load session", sessionID)
	if err != nil {
		return nil, err
	}
	return s.session.Clone(), nil
}

func (m *Memory) LoadDrafts(_ context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, err := m.get("load drafts", sessionID)
	if err != nil {
		return nil, err
	}

	out := make(map[authoring.DraftKey]string, len(s.drafts))
	for k, v := range s.drafts {
		out[k] = v
	}
	return out, nil
}

// an empty content removes the draft
func (m *Memory) SaveDraft(_ context.Context, sessionID string, key authoring.DraftKey, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get("save draft", sessionID)
	if err != nil {
		return err
	}

	if content == "" {
		delete(s.drafts, key)
	} else {
		s.drafts[key] = content
	}
	s.updated = m.now()
	return nil
}

// most recently updated first
func (m *Memory) ListSessions(_ context.Context) ([]authoring.SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]authoring.SessionSummary, 0, len(m.sessions))
	for id, s := range m.sessions {
		out = append(out, authoring.SessionSummary{
			ID:          id,
			Title:       s.session.Title,
			LastUpdated: s.updated,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})

	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.get("delete session", sessionID); err != nil {
		return err
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *Memory) RenameSession(_ context.Context, sessionID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.get("rename session", sessionID)
	if err != nil {
		return err
	}

	s.session.Title = title
	s.updated = m.now()
	return nil
}
