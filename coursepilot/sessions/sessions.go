package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"codeberg.org/coursepilot/server/internal/authoring"
)

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// creates the tables when they do not exist yet
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// postgres foreign_key_violation; a draft written for a deleted session
const codeForeignKeyViolation = "23503"

// maps driver errors onto the authoring sentinels
func wrap(op string, err error) error {
	var pgErr *pgconn.PgError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%s: %w", op, authoring.ErrNotFound)
	case errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation:
		return fmt.Errorf("%s: %w: %w", op, authoring.ErrNotFound, err)
	case pgconn.Timeout(err) || pgconn.SafeToRetry(err):
		return fmt.Errorf("%s: %w: %w", op, authoring.ErrTransientIO, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec        Record
		transcript []byte
		draft      []byte
		savedAt    *time.Time
	)

	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.Title,
		&transcript,
		&draft,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&savedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if err := json.Unmarshal(draft, &rec.Draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if rec.Transcript == nil {
		rec.Transcript = []authoring.Message{}
	}
	if rec.Draft.Sections == nil {
		rec.Draft.Sections = []authoring.Section{}
	}
	if savedAt != nil {
		rec.LastSavedAt = *savedAt
	}

	return &rec, nil
}

// creates a new empty authoring session
func (r *repository) CreateSession(ctx context.Context, ownerID, title string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, queryCreateSession, ownerID, title))
	if err != nil {
		return nil, wrap("create session", err)
	}
	return rec, nil
}

// retrieves a session owned by ownerID
func (r *repository) GetSession(ctx context.Context, ownerID, sessionID string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, queryGetSession, sessionID, ownerID))
	if err != nil {
		return nil, wrap("get session "+sessionID, err)
	}
	return rec, nil
}

// lists the owner's sessions, most recently updated first
func (r *repository) ListSessions(ctx context.Context, ownerID string) ([]authoring.SessionSummary, error) {
	rows, err := r.db.Query(ctx, queryListSessions, ownerID)
	if err != nil {
		return nil, wrap("list sessions", err)
	}

	defer rows.Close()
	summaries := []authoring.SessionSummary{}

	for rows.Next() {
		var s authoring.SessionSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.LastUpdated); err != nil {
			return nil, wrap("list sessions", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("list sessions", err)
	}

	return summaries, nil
}

// replaces the transcript and draft of a session in one statement
func (r *repository) SaveSession(
	ctx context.Context,
	ownerID, sessionID string,
	transcript []authoring.Message,
	draft authoring.CourseStructure,
) (time.Time, error) {
	if transcript == nil {
		transcript = []authoring.Message{}
	}
	if draft.Sections == nil {
		draft.Sections = []authoring.Section{}
	}

	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return time.Time{}, fmt.Errorf("encode transcript: %w", err)
	}
	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return time.Time{}, fmt.Errorf("encode draft: %w", err)
	}

	var savedAt time.Time
	err = r.db.QueryRow(ctx, querySaveSession, transcriptJSON, draftJSON, sessionID, ownerID).Scan(&savedAt)
	if err != nil {
		return time.Time{}, wrap("save session "+sessionID, err)
	}

	return savedAt, nil
}

func (r *repository) RenameSession(ctx context.Context, ownerID, sessionID, title string) error {
	tag, err := r.db.Exec(ctx, queryRenameSession, title, sessionID, ownerID)
	if err != nil {
		return wrap("rename session", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rename session %s: %w", sessionID, authoring.ErrNotFound)
	}
	return nil
}

// deletes a session; its drafts go with it
func (r *repository) DeleteSession(ctx context.Context, ownerID, sessionID string) error {
	tag, err := r.db.Exec(ctx, queryDeleteSession, sessionID, ownerID)
	if err != nil {
		return wrap("delete session", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete session %s: %w", sessionID, authoring.ErrNotFound)
	}
	return nil
}

func (r *repository) SessionOwner(ctx context.Context, sessionID string) (string, error) {
	var owner string
	if err := r.db.QueryRow(ctx, querySessionOwner, sessionID).Scan(&owner); err != nil {
		return "", wrap("session owner", err)
	}
	return owner, nil
}

// returns the stored lesson drafts of a session
func (r *repository) GetDrafts(ctx context.Context, sessionID string) (map[authoring.DraftKey]string, error) {
	rows, err := r.db.Query(ctx, queryGetDrafts, sessionID)
	if err != nil {
		return nil, wrap("get drafts", err)
	}

	defer rows.Close()
	drafts := make(map[authoring.DraftKey]string)

	for rows.Next() {
		var (
			key     authoring.DraftKey
			content string
		)
		if err := rows.Scan(&key.Section, &key.Lesson, &content); err != nil {
			return nil, wrap("get drafts", err)
		}
		drafts[key] = content
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("get drafts", err)
	}

	return drafts, nil
}

// writes drafts in one transaction; empty content deletes the row
func (r *repository) WriteDrafts(ctx context.Context, sessionID string, drafts map[authoring.DraftKey]string) error {
	if len(drafts) == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		for key, content := range drafts {
			if content == "" {
				batch.Queue(queryDeleteDraft, sessionID, key.Section, key.Lesson)
				continue
			}
			batch.Queue(queryUpsertDraft, sessionID, key.Section, key.Lesson, content)
		}
		batch.Queue(queryTouchSession, sessionID)

		return tx.SendBatch(ctx, batch).Close()
	})

	return wrap("write drafts", err)
}

// lists drafts last written before the cutoff, oldest first
func (r *repository) ListStaleDrafts(ctx context.Context, before time.Time, limit int) ([]StaleDraft, error) {
	rows, err := r.db.Query(ctx, queryListStaleDrafts, before, limit)
	if err != nil {
		return nil, wrap("list stale drafts", err)
	}

	defer rows.Close()
	var stale []StaleDraft

	for rows.Next() {
		var (
			d     StaleDraft
			draft []byte
		)
		if err := rows.Scan(&d.SessionID, &d.Key.Section, &d.Key.Lesson, &d.UpdatedAt, &draft); err != nil {
			return nil, wrap("list stale drafts", err)
		}
		if err := json.Unmarshal(draft, &d.Draft); err != nil {
			return nil, fmt.Errorf("decode draft of session %s: %w", d.SessionID, err)
		}
		stale = append(stale, d)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap("list stale drafts", err)
	}

	return stale, nil
}

func (r *repository) DeleteDrafts(ctx context.Context, sessionID string, keys []authoring.DraftKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, key := range keys {
		batch.Queue(queryDeleteDraft, sessionID, key.Section, key.Lesson)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	var deleted int64
	for range keys {
		tag, err := results.Exec()
		if err != nil {
			return deleted, wrap("delete drafts", err)
		}
		deleted += tag.RowsAffected()
	}

	return deleted, nil
}
