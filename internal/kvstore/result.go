package kvstore

import "time"

// Status classifies the outcome of a read.
type Status int

const (
	// StatusNotFound covers both missing and expired entries.
	StatusNotFound Status = iota
	// StatusFound means Value holds the stored value.
	StatusFound
	// StatusError means the backend could not be read. The caller sees no
	// value; Err carries the cause.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusError:
		return "error"
	default:
		return "not_found"
	}
}

// Result is the outcome of a read.
type Result struct {
	Status Status
	Value  map[string]any
	// ExpiresIn is the remaining lifetime. It is only set by TTL and TTLMany,
	// and only for found entries that have an expiry.
	ExpiresIn *time.Duration
	Err       error
}

// Found reports whether a live value was read.
func (r Result) Found() bool {
	return r.Status == StatusFound
}

// TTLSeconds returns the remaining lifetime in seconds, if known.
func (r Result) TTLSeconds() (float64, bool) {
	if r.ExpiresIn == nil {
		return 0, false
	}
	return r.ExpiresIn.Seconds(), true
}
