package risk

import (
	mathrand "math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

const (
	ActionAllowed = "allowed"
	ActionBlocked = "blocked"
)

// SecurityEvent is the immutable audit record of one assessment.
type SecurityEvent struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	UserID     string     `json:"user_id"`
	Command    string     `json:"command"`
	Assessment Assessment `json:"risk_assessment"`
	Action     string     `json:"action_taken"`
	ClientAddr string     `json:"client_addr,omitempty"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// newEventID returns a lexicographically sortable id.
func newEventID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
