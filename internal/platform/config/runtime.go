package config

import "sync/atomic"

// Runtime is the settings record the dashboard may replace while the
// process runs. Values are read through an immutable snapshot per
// operation; mutation happens only by swapping the whole record.
type Runtime struct {
	BackupGroupID       int64
	SimilarityThreshold float64
	IgnoredChatIDs      map[int64]struct{}
}

// Ignored reports whether the chat id is excluded from forwarding.
func (r Runtime) Ignored(chatID int64) bool {
	_, ok := r.IgnoredChatIDs[chatID]
	return ok
}

// IgnoredList returns the ignore set as a sorted-free slice for the API.
func (r Runtime) IgnoredList() []int64 {
	out := make([]int64, 0, len(r.IgnoredChatIDs))
	for id := range r.IgnoredChatIDs {
		out = append(out, id)
	}

	return out
}

// Store holds the current Runtime behind an atomic pointer.
type Store struct {
	current atomic.Pointer[Runtime]
}

func NewStore(initial Runtime) *Store {
	s := &Store{}
	s.current.Store(&initial)

	return s
}

// Snapshot returns the runtime settings as of this call. The returned
// value never changes under the caller.
func (s *Store) Snapshot() Runtime {
	return *s.current.Load()
}

// Replace atomically installs a new runtime record. In-flight operations
// keep the snapshot they already took.
func (s *Store) Replace(r Runtime) {
	s.current.Store(&r)
}
