package visitor

import (
	"testing"
	"time"
)

func TestDecide_FirstVisitCounts(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	d := Decide(NewState(), 7, 24*time.Hour, now)

	if !d.ShouldCount {
		t.Fatal("first visit should count")
	}
	want := now.Add(24 * time.Hour).Unix()
	if got := d.State.Entries[7]; got != want {
		t.Fatalf("entry expiry = %d, want %d", got, want)
	}
}

func TestDecide_CooldownSuppressesRepeat(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	cooldown := time.Hour

	first := Decide(NewState(), 7, cooldown, now)
	if !first.ShouldCount {
		t.Fatal("first visit should count")
	}

	tests := []struct {
		name  string
		delay time.Duration
		want  bool
	}{
		{"immediate repeat", 0, false},
		{"halfway through cooldown", 30 * time.Minute, false},
		{"one second before expiry", cooldown - time.Second, false},
		{"exactly at expiry", cooldown, true},
		{"after expiry", cooldown + time.Minute, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := Decide(first.State, 7, cooldown, now.Add(tt.delay))
			if d.ShouldCount != tt.want {
				t.Errorf("ShouldCount = %v, want %v", d.ShouldCount, tt.want)
			}
		})
	}
}

func TestDecide_SuppressedVisitLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewState()
	st.Entries[7] = now.Add(time.Hour).Unix()
	st.Entries[8] = now.Add(-time.Hour).Unix() // already stale

	d := Decide(st, 7, time.Hour, now)
	if d.ShouldCount {
		t.Fatal("visit within cooldown should not count")
	}
	// No mutation means no pruning either: the stale entry survives until the
	// next counting visit.
	if len(d.State.Entries) != 2 {
		t.Fatalf("state mutated on suppressed visit: %v", d.State.Entries)
	}
}

func TestDecide_PrunesExpiredOnCount(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewState()
	st.Entries[1] = now.Add(-90 * time.Minute).Unix()
	st.Entries[2] = now.Add(-time.Second).Unix()
	st.Entries[3] = now.Add(time.Hour).Unix()

	d := Decide(st, 4, time.Hour, now)
	if !d.ShouldCount {
		t.Fatal("unseen content should count")
	}
	if _, ok := d.State.Entries[1]; ok {
		t.Error("expired entry 1 not pruned")
	}
	if _, ok := d.State.Entries[2]; ok {
		t.Error("expired entry 2 not pruned")
	}
	if _, ok := d.State.Entries[3]; !ok {
		t.Error("live entry 3 was pruned")
	}
	if _, ok := d.State.Entries[4]; !ok {
		t.Error("counted entry 4 missing")
	}
	// Input state is never mutated in place.
	if len(st.Entries) != 3 {
		t.Errorf("input state mutated: %v", st.Entries)
	}
}

func TestDecide_ZeroCooldown(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewState()

	// Every sequential visit counts: the written expiry equals now, which is
	// immediately stale.
	for i := 0; i < 3; i++ {
		d := Decide(st, 7, 0, now)
		if !d.ShouldCount {
			t.Fatalf("visit %d with zero cooldown should count", i+1)
		}
		st = d.State
	}
	if st.Entries[7] != now.Unix() {
		t.Fatalf("entry expiry = %d, want %d", st.Entries[7], now.Unix())
	}
}

func TestDecide_MalformedStateCountsAsFirstVisit(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := Decode("garbage-from-client")

	d := Decide(st, 7, 24*time.Hour, now)
	if !d.ShouldCount {
		t.Fatal("malformed prior state should behave like a first visit")
	}
	if len(d.State.Entries) != 1 {
		t.Fatalf("unexpected entries: %v", d.State.Entries)
	}
}
