package visitor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxChunkSize is the byte limit for one encoded chunk, chosen conservatively
// below the 4 KiB browser cookie cell size.
const MaxChunkSize = 3980

// statePattern validates an encoded state before parsing. Entries are
// "{expiry}b{contentID}" joined by "a", so the alphabet is digits plus the two
// delimiter letters. Anything else decodes as empty state.
var statePattern = regexp.MustCompile(`^([0-9]+b[0-9]+a?)+$`)

// Chunk is one size-bounded piece of encoded state. Chunks are stored under
// indexed sub-keys (cookie "name_0", "name_1", ...) and all share the same
// outer expiry so none vanishes independently.
type Chunk struct {
	Index     int
	Value     string
	ExpiresAt time.Time
}

// Encode serializes a state into ordered chunks of at most MaxChunkSize
// bytes. Splits happen only at whole-entry boundaries, so each chunk decodes
// to a valid set of entries on its own and concatenating chunk values in index
// order reproduces the unsplit encoding exactly. An empty state encodes to nil.
func Encode(s State) []Chunk {
	if s.Empty() {
		return nil
	}

	ids := make([]int64, 0, len(s.Entries))
	for id := range s.Entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts,
			strconv.FormatInt(s.Entries[id], 10)+"b"+strconv.FormatInt(id, 10))
	}
	joined := strings.Join(parts, "a")
	expiry := s.MaxExpiry()

	var chunks []Chunk
	for start := 0; start < len(joined); {
		end := start + MaxChunkSize
		if end >= len(joined) {
			end = len(joined)
		} else if cut := strings.LastIndexByte(joined[start:end], 'a'); cut > 0 {
			// Back up to the last complete entry; the separator stays with
			// this chunk so concatenation reproduces the original string.
			end = start + cut + 1
		} else {
			end = len(joined)
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Value:     joined[start:end],
			ExpiresAt: expiry,
		})
		start = end
	}
	return chunks
}

// Decode parses an encoded state. Malformed input yields an empty state,
// never an error: a client presenting garbage is simply a first-time visitor.
func Decode(raw string) State {
	st := NewState()
	if raw == "" || !statePattern.MatchString(raw) {
		return st
	}
	for _, part := range strings.Split(strings.TrimSuffix(raw, "a"), "a") {
		sep := strings.IndexByte(part, 'b')
		if sep <= 0 {
			continue
		}
		exp, err := strconv.ParseInt(part[:sep], 10, 64)
		if err != nil {
			continue
		}
		id, err := strconv.ParseInt(part[sep+1:], 10, 64)
		if err != nil {
			continue
		}
		st.Entries[id] = exp
	}
	return st
}

// DecodeChunks reassembles chunk values in index order and decodes the result.
// The chunk boundary is a transport concern only; missing or malformed chunks
// degrade to whatever entries still parse.
func DecodeChunks(values []string) State {
	return Decode(strings.Join(values, ""))
}
