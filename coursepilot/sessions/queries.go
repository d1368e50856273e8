package sessions

const (
	schema = `
		CREATE TABLE IF NOT EXISTS authoring_sessions (
			id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			owner_id      TEXT NOT NULL,
			title         TEXT NOT NULL DEFAULT '',
			transcript    JSONB NOT NULL DEFAULT '[]'::jsonb,
			draft         JSONB NOT NULL DEFAULT '{"title":"","sections":[]}'::jsonb,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_saved_at TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS authoring_sessions_owner_idx
			ON authoring_sessions (owner_id, updated_at DESC);

		CREATE TABLE IF NOT EXISTS lesson_drafts (
			session_id    UUID NOT NULL REFERENCES authoring_sessions (id) ON DELETE CASCADE,
			section_index INT NOT NULL CHECK (section_index >= 0),
			lesson_index  INT NOT NULL CHECK (lesson_index >= 0),
			content       TEXT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, section_index, lesson_index)
		);

		CREATE INDEX IF NOT EXISTS lesson_drafts_updated_idx ON lesson_drafts (updated_at);
	`

	// session queries
	queryCreateSession = `
		INSERT INTO authoring_sessions (owner_id, title)
		VALUES ($1, $2)
		RETURNING id, owner_id, title, transcript, draft, created_at, updated_at, last_saved_at
	`

	queryGetSession = `
		SELECT id, owner_id, title, transcript, draft, created_at, updated_at, last_saved_at
		FROM authoring_sessions
		WHERE id = $1 AND owner_id = $2
	`

	queryListSessions = `
		SELECT id, title, updated_at
		FROM authoring_sessions
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`

	querySaveSession = `
		UPDATE authoring_sessions
		SET transcript = $1, draft = $2, updated_at = NOW(), last_saved_at = NOW()
		WHERE id = $3 AND owner_id = $4
		RETURNING last_saved_at
	`

	queryRenameSession = `
		UPDATE authoring_sessions
		SET title = $1, updated_at = NOW()
		WHERE id = $2 AND owner_id = $3
	`

	queryDeleteSession = `
		DELETE FROM authoring_sessions
		WHERE id = $1 AND owner_id = $2
	`

	querySessionOwner = `
		SELECT owner_id FROM authoring_sessions WHERE id = $1
	`

	queryTouchSession = `
		UPDATE authoring_sessions SET updated_at = NOW() WHERE id = $1
	`

	// lesson draft queries
	queryGetDrafts = `
		SELECT section_index, lesson_index, content
		FROM lesson_drafts
		WHERE session_id = $1
	`

	queryUpsertDraft = `
		INSERT INTO lesson_drafts (session_id, section_index, lesson_index, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, section_index, lesson_index) DO UPDATE
		SET content = EXCLUDED.content, updated_at = NOW()
	`

	queryDeleteDraft = `
		DELETE FROM lesson_drafts
		WHERE session_id = $1 AND section_index = $2 AND lesson_index = $3
	`

	queryListStaleDrafts = `
		SELECT d.session_id, d.section_index, d.lesson_index, d.updated_at, s.draft
		FROM lesson_drafts d
		JOIN authoring_sessions s ON s.id = d.session_id
		WHERE d.updated_at < $1
		ORDER BY d.updated_at
		LIMIT $2
	`
)
