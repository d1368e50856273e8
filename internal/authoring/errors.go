package authoring

import (
	"context"
	"errors"
)

var (
	// network or storage call failed; retried by the next save cycle
	ErrTransientIO = errors.New("transient i/o failure")

	// the active session changed underneath local uncommitted edits
	ErrIdentityConflict = errors.New("active session changed underfoot")

	// durable tab storage is full or unavailable
	ErrQuotaExceeded = errors.New("durable storage quota exceeded")

	// session or draft missing on the host
	ErrNotFound = errors.New("not found")
)

// error classes of the sync core
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientIO
	KindIdentityConflict
	KindQuotaExceeded
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindIdentityConflict:
		return "identity_conflict"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// maps err onto the taxonomy; timeouts count as transient
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrIdentityConflict):
		return KindIdentityConflict
	case errors.Is(err, ErrTransientIO),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransientIO
	default:
		return KindUnknown
	}
}
