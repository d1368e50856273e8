package buffer

// redis key patterns
const (
	// drafts:{sessionID} - hash of draft key ("s::l") to content; an empty
	// value is a buffered deletion
	keySessionDrafts = "drafts:%s"

	// dirty_sessions:drafts - set of session IDs with unflushed drafts
	keyDirtySessionsDrafts = "dirty_sessions:drafts"
)
