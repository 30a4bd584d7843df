package kvstore

import "time"

// Entry is a stored value together with its lifetime.
// Entries are never modified after construction; Put always writes a new one.
type Entry struct {
	Value     map[string]any
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// NewEntry builds an entry created at now. A ttl of zero or less means the
// entry never expires.
func NewEntry(value map[string]any, now time.Time, ttl time.Duration) Entry {
	e := Entry{Value: value, CreatedAt: now}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		e.ExpiresAt = &expiresAt
	}
	return e
}

// IsExpired reports whether the entry has expired at now.
// The boundary is inclusive: an entry with a 60s TTL is gone at exactly 60s.
func (e Entry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// TTL returns the remaining lifetime at now, floored at zero.
// ok is false when the entry has no expiry.
func (e Entry) TTL(now time.Time) (remaining time.Duration, ok bool) {
	if e.ExpiresAt == nil {
		return 0, false
	}
	remaining = e.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// nativeTTLSeconds converts a ttl into the whole-second hint handed to the
// backend. Sub-second TTLs round up to one second so the hint is never zero.
func nativeTTLSeconds(ttl time.Duration) int {
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
