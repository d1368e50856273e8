package generate

import "context"

// bounds the context sent to the model
const (
	maxMessageLength    = 8000
	maxTranscriptLength = 500
)

// resolves who owns a session; satisfied by sessions.Repository
type OwnerLookup interface {
	SessionOwner(ctx context.Context, sessionID string) (string, error)
}
