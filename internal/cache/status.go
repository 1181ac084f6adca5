package cache

// ItemStatus records which cache tiers held a hit. Fetch sets only the
// field of the tier that produced the hit; Exists sets every tier that
// holds the hash, so both fields can be true there.
type ItemStatus struct {
	Local  bool
	Remote bool
}

// NewCacheMiss returns the zero ItemStatus, useful for readability at
// call sites that short-circuit before touching either tier.
func NewCacheMiss() ItemStatus {
	return ItemStatus{}
}

// Hit reports whether any tier produced a hit.
func (s ItemStatus) Hit() bool {
	return s.Local || s.Remote
}

// EventSource identifies which cache tier an event refers to.
type EventSource string

const (
	CacheSourceFS     EventSource = "LOCAL"
	CacheSourceRemote EventSource = "REMOTE"
)

// EventKind identifies a cache event's outcome.
type EventKind string

const (
	CacheEventHit  EventKind = "HIT"
	CacheEventMiss EventKind = "MISS"
)
