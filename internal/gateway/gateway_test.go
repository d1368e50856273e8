package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/coursepilot/server/internal/authoring"
)

func sampleDraft() authoring.CourseStructure {
	return authoring.CourseStructure{
		Title: "Intro to Go",
		Sections: []authoring.Section{
			{
				Title: "Basics",
				Lessons: []authoring.Lesson{
					{Title: "Hello", Type: "video", Duration: "5m", Content: "saved"},
					{Title: "Types", Type: "text", DraftContent: "pending"},
				},
			},
		},
	}
}

func sampleTranscript() []authoring.Message {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []authoring.Message{
		{Role: authoring.RoleUser, Content: "outline a course", Timestamp: ts},
		{Role: authoring.RoleAssistant, Content: "here it is", Timestamp: ts.Add(time.Second)},
	}
}

func TestMemorySaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.CreateSession(ctx, "draft course")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	transcript := sampleTranscript()
	draft := sampleDraft()
	require.NoError(t, m.Save(ctx, id, transcript, draft))

	got, err := m.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, transcript, got.Transcript)
	assert.Equal(t, draft, got.Draft)
	assert.Equal(t, "draft course", got.Title)
	assert.False(t, got.LastSavedAt.IsZero())

	// loaded copy is independent of the stored one
	got.Draft.Sections[0].Lessons[0].Title = "changed"
	again, err := m.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hello", again.Draft.Sections[0].Lessons[0].Title)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.LoadSession(ctx, "nope")
	assert.ErrorIs(t, err, authoring.ErrNotFound)

	err = m.Save(ctx, "nope", nil, authoring.CourseStructure{})
	assert.ErrorIs(t, err, authoring.ErrNotFound)

	err = m.SaveDraft(ctx, "nope", authoring.DraftKey{}, "x")
	assert.ErrorIs(t, err, authoring.ErrNotFound)

	assert.ErrorIs(t, m.DeleteSession(ctx, "nope"), authoring.ErrNotFound)
}

func TestMemoryDraftsAndListing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	a, err := m.CreateSession(ctx, "a")
	require.NoError(t, err)
	b, err := m.CreateSession(ctx, "b")
	require.NoError(t, err)

	key := authoring.DraftKey{Section: 0, Lesson: 1}
	require.NoError(t, m.SaveDraft(ctx, a, key, "first"))
	require.NoError(t, m.SaveDraft(ctx, a, key, "second"))

	drafts, err := m.LoadDrafts(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, map[authoring.DraftKey]string{key: "second"}, drafts)

	require.NoError(t, m.RenameSession(ctx, b, "renamed"))

	list, err := m.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b, list[0].ID)
	assert.Equal(t, "renamed", list[0].Title)
	assert.Equal(t, a, list[1].ID)

	require.NoError(t, m.DeleteSession(ctx, a))
	list, err = m.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// restHost is a minimal stand-in for the host API backed by Memory
func restHost(t *testing.T, m *Memory) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	ctx := context.Background()

	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	notFound := func(w http.ResponseWriter) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "session not found"})
	}

	mux.HandleFunc("POST /api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req createSessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		id, _ := m.CreateSession(ctx, req.Title)
		writeJSON(w, http.StatusCreated, createSessionResponse{ID: id})
	})
	mux.HandleFunc("GET /api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		list, _ := m.ListSessions(ctx)
		writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: list})
	})
	mux.HandleFunc("GET /api/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		s, err := m.LoadSession(ctx, r.PathValue("id"))
		if err != nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, s)
	})
	mux.HandleFunc("PUT /api/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req saveSessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if err := m.Save(ctx, r.PathValue("id"), req.Transcript, req.Draft); err != nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, saveSessionResponse{OK: true, SavedAt: time.Now()})
	})
	mux.HandleFunc("PATCH /api/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req renameSessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if err := m.RenameSession(ctx, r.PathValue("id"), req.Title); err != nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	})
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := m.DeleteSession(ctx, r.PathValue("id")); err != nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	})
	mux.HandleFunc("GET /api/v1/sessions/{id}/drafts", func(w http.ResponseWriter, r *http.Request) {
		drafts, err := m.LoadDrafts(ctx, r.PathValue("id"))
		if err != nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, draftsResponse{Drafts: drafts})
	})
	mux.HandleFunc("PUT /api/v1/sessions/{id}/drafts/{key}", func(w http.ResponseWriter, r *http.Request) {
		key, err := authoring.ParseDraftKey(r.PathValue("key"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request"})
			return
		}
		var req saveDraftRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if err := m.SaveDraft(ctx, r.PathValue("id"), key, req.Content); err != nil {
			notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRESTClientAgainstHost(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	srv := restHost(t, m)

	c := NewRESTClient(RESTOptions{BaseURL: srv.URL, Token: "secret"})

	id, err := c.CreateSession(ctx, "rest course")
	require.NoError(t, err)

	transcript := sampleTranscript()
	draft := sampleDraft()
	require.NoError(t, c.Save(ctx, id, transcript, draft))

	got, err := c.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, draft, got.Draft)
	require.Len(t, got.Transcript, len(transcript))
	for i := range transcript {
		assert.Equal(t, transcript[i].Role, got.Transcript[i].Role)
		assert.Equal(t, transcript[i].Content, got.Transcript[i].Content)
		assert.True(t, transcript[i].Timestamp.Equal(got.Transcript[i].Timestamp))
	}

	key := authoring.DraftKey{Section: 0, Lesson: 1}
	require.NoError(t, c.SaveDraft(ctx, id, key, "lesson body"))
	drafts, err := c.LoadDrafts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "lesson body", drafts[key])

	require.NoError(t, c.RenameSession(ctx, id, "renamed"))
	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Title)

	require.NoError(t, c.DeleteSession(ctx, id))
	_, err = c.LoadSession(ctx, id)
	assert.ErrorIs(t, err, authoring.ErrNotFound)
}

func TestRESTClientServerErrorsAreTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(RESTOptions{
		BaseURL:      srv.URL,
		RetryCount:   2,
		RetryWait:    time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	})

	err := c.Save(context.Background(), "s1", nil, authoring.CourseStructure{})
	require.Error(t, err)
	assert.ErrorIs(t, err, authoring.ErrTransientIO)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRESTClientUnreachableHostIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewRESTClient(RESTOptions{BaseURL: url, Timeout: time.Second})

	_, err := c.ListSessions(context.Background())
	require.Error(t, err)
	assert.Equal(t, authoring.KindTransientIO, authoring.Classify(err))
}

func TestRESTClientClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad_request","message":"title too long"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(RESTOptions{BaseURL: srv.URL, RetryCount: 3, RetryWait: time.Millisecond})

	err := c.RenameSession(context.Background(), "s1", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title too long")
	assert.Equal(t, authoring.KindUnknown, authoring.Classify(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRESTClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "add a quiz", req.Message)

		updated := req.Draft.Clone()
		updated.Title = "with quiz"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GenerateResponse{Message: "added", UpdatedDraft: &updated})
	}))
	defer srv.Close()

	c := NewRESTClient(RESTOptions{BaseURL: srv.URL})

	resp, err := c.Generate(context.Background(), GenerateRequest{
		SessionID: "s1",
		Message:   "add a quiz",
		Draft:     sampleDraft(),
	})
	require.NoError(t, err)
	assert.Equal(t, "added", resp.Message)
	require.NotNil(t, resp.UpdatedDraft)
	assert.Equal(t, "with quiz", resp.UpdatedDraft.Title)
}
