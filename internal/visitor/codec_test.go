package visitor

import (
	"fmt"
	"testing"
	"time"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	st := NewState()
	st.Entries[7] = now.Add(24 * time.Hour).Unix()
	st.Entries[42] = now.Add(time.Hour).Unix()
	st.Entries[100000] = now.Add(30 * time.Minute).Unix()

	chunks := Encode(st)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for small state, got %d", len(chunks))
	}

	decoded := Decode(chunks[0].Value)
	assertSameEntries(t, st, decoded)
}

func TestEncode_EmptyState(t *testing.T) {
	t.Parallel()

	if chunks := Encode(NewState()); chunks != nil {
		t.Fatalf("expected nil chunks for empty state, got %d", len(chunks))
	}
}

func TestEncode_ChunkExpiry(t *testing.T) {
	t.Parallel()

	st := NewState()
	st.Entries[1] = 1700000000
	st.Entries[2] = 1700009999

	chunks := Encode(st)
	want := time.Unix(1700009999, 0).UTC()
	for _, c := range chunks {
		if !c.ExpiresAt.Equal(want) {
			t.Fatalf("chunk %d expiry = %v, want %v", c.Index, c.ExpiresAt, want)
		}
	}
}

func TestEncode_SplitsAtEntryBoundaries(t *testing.T) {
	t.Parallel()

	// Enough entries that the joined encoding spans several chunks.
	now := time.Now().UTC()
	st := NewState()
	for i := int64(1); i <= 500; i++ {
		st.Entries[1000000+i] = now.Add(time.Duration(i) * time.Minute).Unix()
	}

	chunks := Encode(st)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	values := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.Value) > MaxChunkSize {
			t.Errorf("chunk %d is %d bytes, over the %d limit", i, len(c.Value), MaxChunkSize)
		}
		// Every chunk must decode to whole entries on its own.
		partial := Decode(c.Value)
		if partial.Empty() {
			t.Errorf("chunk %d does not decode independently", i)
		}
		for id, exp := range partial.Entries {
			if st.Entries[id] != exp {
				t.Errorf("chunk %d entry %d = %d, want %d", i, id, exp, st.Entries[id])
			}
		}
		values = append(values, c.Value)
	}

	assertSameEntries(t, st, DecodeChunks(values))
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"letters", "not-a-state"},
		{"missing id", "1700000000b"},
		{"missing expiry", "b42"},
		{"wrong delimiter", "1700000000c42"},
		{"trailing junk", "1700000000b42a!!"},
		{"negative", "-1b42"},
		{"json", `{"42":1700000000}`},
		{"sql", "1700000000b42'; DROP TABLE views;--"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := Decode(tt.raw)
			if !st.Empty() {
				t.Errorf("Decode(%q) = %d entries, want empty state", tt.raw, len(st.Entries))
			}
		})
	}
}

func TestDecode_TrailingSeparator(t *testing.T) {
	t.Parallel()

	st := Decode("1700000000b42a")
	if len(st.Entries) != 1 || st.Entries[42] != 1700000000 {
		t.Fatalf("unexpected entries: %v", st.Entries)
	}
}

func TestDecode_OverflowEntrySkipped(t *testing.T) {
	t.Parallel()

	// A numeric-but-unparseable entry contributes nothing; the rest survive.
	raw := fmt.Sprintf("99999999999999999999999b1a%db7", 1700000000)
	st := Decode(raw)
	if st.Entries[7] != 1700000000 {
		t.Fatalf("valid entry lost: %v", st.Entries)
	}
	if _, ok := st.Entries[1]; ok {
		t.Fatalf("overflowed entry should be dropped: %v", st.Entries)
	}
}

func TestDecodeChunks_OutOfOrderJoinIsCallerResponsibility(t *testing.T) {
	t.Parallel()

	st := NewState()
	for i := int64(1); i <= 400; i++ {
		st.Entries[i] = 1800000000 + i
	}

	chunks := Encode(st)
	if len(chunks) < 2 {
		t.Skip("state too small to chunk")
	}

	values := make([]string, len(chunks))
	for _, c := range chunks {
		values[c.Index] = c.Value
	}
	assertSameEntries(t, st, DecodeChunks(values))
}

func assertSameEntries(t *testing.T, want, got State) {
	t.Helper()

	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("entry count = %d, want %d", len(got.Entries), len(want.Entries))
	}
	for id, exp := range want.Entries {
		if got.Entries[id] != exp {
			t.Errorf("entry %d = %d, want %d", id, got.Entries[id], exp)
		}
	}
}
