// Package visitor implements the per-visitor de-duplication state that
// decides whether a repeat view is counted again. The state round-trips with
// the client on every request, either in chunked cookies or as an opaque
// payload stored server-side under a client-held key.
package visitor

import "time"

// State records which content ids a visitor recently viewed and when each
// record stops suppressing a repeat count.
type State struct {
	// Entries maps content id to unix expiry (UTC seconds). An entry
	// suppresses counting while now < expiry.
	Entries map[int64]int64
}

// NewState returns an empty state.
func NewState() State {
	return State{Entries: make(map[int64]int64)}
}

// Empty reports whether the visitor has no recorded views.
func (s State) Empty() bool {
	return len(s.Entries) == 0
}

// MaxExpiry returns the latest entry expiry, used as the outer storage expiry
// for every encoded chunk. Returns the zero time for an empty state.
func (s State) MaxExpiry() time.Time {
	var max int64
	for _, exp := range s.Entries {
		if exp > max {
			max = exp
		}
	}
	if max == 0 {
		return time.Time{}
	}
	return time.Unix(max, 0).UTC()
}

// Prune drops entries whose expiry has passed. Called on every mutating
// decision so a long-lived visitor's state stays bounded.
func (s State) Prune(now time.Time) {
	cutoff := now.Unix()
	for id, exp := range s.Entries {
		if exp < cutoff {
			delete(s.Entries, id)
		}
	}
}

// Clone returns an independent copy of the state.
func (s State) Clone() State {
	next := State{Entries: make(map[int64]int64, len(s.Entries))}
	for id, exp := range s.Entries {
		next.Entries[id] = exp
	}
	return next
}
