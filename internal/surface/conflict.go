package surface

import "context"

// the author's answer when the active session changed under local edits
type Decision int

const (
	// keep editing the local session and make it active again everywhere
	KeepLocal Decision = iota
	// drop unsaved local edits and follow the other tab
	DiscardLocal
)

func (d Decision) String() string {
	if d == DiscardLocal {
		return "discard"
	}
	return "keep"
}

type Conflict struct {
	LocalID       string
	RemoteID      string
	Dirty         bool
	PendingDrafts bool
}

// Prompter asks the author how to resolve an identity conflict. It is the
// only interruption of the editing flow.
type Prompter interface {
	ResolveConflict(ctx context.Context, c Conflict) Decision
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, c Conflict) Decision

func (f PrompterFunc) ResolveConflict(ctx context.Context, c Conflict) Decision {
	return f(ctx, c)
}

// keeps local edits without asking; used when no terminal is attached
var KeepLocalPrompter Prompter = PrompterFunc(func(context.Context, Conflict) Decision {
	return KeepLocal
})
