package memory

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Record is one remembered text and its embedding.
// Its identity is Index, the position in the append-only log.
type Record struct {
	ID        string
	Index     int
	Text      string
	Vector    []float32
	CreatedAt time.Time
}

// NewRecord creates a Record for the next log position.
func NewRecord(index int, text string, vector []float32) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Index:     index,
		Text:      text,
		Vector:    vector,
		CreatedAt: time.Now().UTC(),
	}
}

// String summarises the record for logs.
func (r *Record) String() string {
	return fmt.Sprintf("#%d %q (%d dims)", r.Index, truncate(r.Text, 40), len(r.Vector))
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:runeCut(s, maxLen-3)] + "..."
}

// runeCut returns the largest index <= n that starts a rune in s.
func runeCut(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
