// Package gatewaytest provides gateway doubles that record calls and
// inject failures.
package gatewaytest

import (
	"context"
	"sync"

	"codeberg.org/coursepilot/server/internal/authoring"
	"codeberg.org/coursepilot/server/internal/gateway"
)

type Op string

const (
	OpSave          Op = "save"
	OpLoadSession   Op = "loadSession"
	OpLoadDrafts    Op = "loadDrafts"
	OpSaveDraft     Op = "saveDraft"
	OpCreateSession Op = "createSession"
	OpListSessions  Op = "listSessions"
	OpDeleteSession Op = "deleteSession"
	OpRenameSession Op = "renameSession"
)

type SaveCall struct {
	SessionID  string
	Transcript []authoring.Message
	Draft      authoring.CourseStructure
}

type SaveDraftCall struct {
	SessionID string
	Key       authoring.DraftKey
	Content   string
}

// Recorder forwards to an inner gateway, recording every call. Calls to an
// op with an injected error fail without reaching the inner gateway.
type Recorder struct {
	Inner gateway.Gateway

	mu         sync.Mutex
	counts     map[Op]int
	saves      []SaveCall
	draftSaves []SaveDraftCall
	failures   map[Op]error
	hooks      map[Op]func()
}

var _ gateway.Gateway = (*Recorder)(nil)

func NewRecorder(inner gateway.Gateway) *Recorder {
	if inner == nil {
		inner = gateway.NewMemory()
	}
	return &Recorder{
		Inner:    inner,
		counts:   make(map[Op]int),
		failures: make(map[Op]error),
		hooks:    make(map[Op]func()),
	}
}

// makes every call to op fail with err; nil clears it
func (r *Recorder) Fail(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// runs fn at the start of every call to op, before the inner gateway
func (r *Recorder) OnCall(op Op, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[op] = fn
}

func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[op]
}

func (r *Recorder) Saves() []SaveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SaveCall(nil), r.saves...)
}

func (r *Recorder) DraftSaves() []SaveDraftCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SaveDraftCall(nil), r.draftSaves...)
}

// zeroes counters and recorded calls
func (r *Recorder) ResetCalls() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[Op]int)
	r.saves = nil
	r.draftSaves = nil
}

func (r *Recorder) enter(op Op) error {
	r.mu.Lock()
	r.counts[op]++
	err := r.failures[op]
	hook := r.hooks[op]
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (r *Recorder) Save(ctx context.Context, sessionID string, transcript []authoring.Message, draft authoring.CourseStructure) error {
	r.mu.Lock()
	r.saves = append(r.saves, SaveCall{
		SessionID:  sessionID,
		Transcript: append([]authoring.Message(nil), transcript...),
		Draft:      draft.Clone(),
	})
	r.mu.Unlock()

	if err := r.enter(OpSave); err != nil {
		return err
	}
	return r.Inner.Save(ctx, sessionID, transcript, draft)
}

func (r *Recorder) LoadSession(ctx context.Context, sessionID string) (*authoring.Session, error) {
	if err := r.enter(OpLoadSession); err != nil {
		return nil, err
	}
	return r.Inner.LoadSession(ctx, sessionID)
}

func (r *Recorder) LoadDrafts(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	if err := r.enter(OpLoadDrafts); err != nil {
		return nil, err
	}
	return r.Inner.LoadDrafts(ctx, sessionID)
}

func (r *Recorder) SaveDraft(ctx context.Context, sessionID string, key authoring.DraftKey, content string) error {
	r.mu.Lock()
	r.draftSaves = append(r.draftSaves, SaveDraftCall{SessionID: sessionID, Key: key, Content: content})
	r.mu.Unlock()

	if err := r.enter(OpSaveDraft); err != nil {
		return err
	}
	return r.Inner.SaveDraft(ctx, sessionID, key, content)
}

func (r *Recorder) CreateSession(ctx context.Context, title string) (string, error) {
	if err := r.enter(OpCreateSession); err != nil {
		return "", err
	}
	return r.Inner.CreateSession(ctx, title)
}

func (r *Recorder) ListSessions(ctx context.Context) ([]authoring.SessionSummary, error) {
	if err := r.enter(OpListSessions); err != nil {
		return nil, err
	}
	return r.Inner.ListSessions(ctx)
}

func (r *Recorder) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.enter(OpDeleteSession); err != nil {
		return err
	}
	return r.Inner.DeleteSession(ctx, sessionID)
}

func (r *Recorder) RenameSession(ctx context.Context, sessionID, title string) error {
	if err := r.enter(OpRenameSession); err != nil {
		return err
	}
	return r.Inner.RenameSession(ctx, sessionID, title)
}

// Generator answers chat turns with a fixed function.
type Generator struct {
	Fn func(req gateway.GenerateRequest) (*gateway.GenerateResponse, error)

	mu       sync.Mutex
	requests []gateway.GenerateRequest
}

func (g *Generator) Generate(_ context.Context, req gateway.GenerateRequest) (*gateway.GenerateResponse, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.Fn == nil {
		return &gateway.GenerateResponse{Message: "ok"}, nil
	}
	return g.Fn(req)
}

func (g *Generator) Requests() []gateway.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.GenerateRequest(nil), g.requests...)
}
