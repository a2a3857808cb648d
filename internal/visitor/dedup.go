package visitor

import "time"

// Decision is the outcome of a de-duplication check. It is consumed
// immediately by the counting service and never persisted.
type Decision struct {
	ShouldCount bool
	State       State
}

// Decide reports whether a visit to contentID counts as a new view given the
// visitor's prior state, and returns the state to hand back to the client.
//
// A first-ever visit always counts. A visit while the content's entry is
// still unexpired does not, and the state is returned untouched. Otherwise
// the entry is set to now + cooldown and expired entries are pruned in the
// same pass. A zero cooldown writes an expiry of exactly now, which is
// immediately stale, so every sequential visit counts.
func Decide(s State, contentID int64, cooldown time.Duration, now time.Time) Decision {
	if exp, ok := s.Entries[contentID]; ok && now.Unix() < exp {
		return Decision{ShouldCount: false, State: s}
	}

	next := s.Clone()
	next.Prune(now)
	next.Entries[contentID] = now.Add(cooldown).Unix()
	return Decision{ShouldCount: true, State: next}
}
