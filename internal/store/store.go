package store

import (
	"context"
	"errors"
	"strings"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess"
)

// ErrStore marks failures of the session or cursor backing store.
var ErrStore = errors.New("store failure")

// Session is one user's game, keyed case-insensitively by Username.
type Session struct {
	Username string
	History  []string
}

type SessionStore interface {
	Load(ctx context.Context) (*Sessions, error)
	Save(ctx context.Context, sessions *Sessions) error
}

type CursorTracker interface {
	Read(ctx context.Context) (int64, error)
	Write(ctx context.Context, id int64) error
}

// Sessions is the in-memory working copy of every stored game. Usernames are unique
// under case folding; Upsert replaces an existing entry in place.
type Sessions struct {
	items []Session
}

// NewSessions builds a list from items in order. When a username repeats, the later
// entry replaces the earlier one.
func NewSessions(items ...Session) *Sessions {
	s := &Sessions{}
	for _, it := range items {
		s.Upsert(it)
	}
	return s
}

func (s *Sessions) Find(username string) (Session, bool) {
	if i := s.index(username); i >= 0 {
		return cloneSession(s.items[i]), true
	}
	return Session{}, false
}

func (s *Sessions) Upsert(sess Session) {
	sess = cloneSession(sess)
	if i := s.index(sess.Username); i >= 0 {
		s.items[i] = sess
		return
	}
	s.items = append(s.items, sess)
}

func (s *Sessions) Remove(username string) bool {
	i := s.index(username)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

func (s *Sessions) All() []Session {
	out := make([]Session, len(s.items))
	for i, it := range s.items {
		out[i] = cloneSession(it)
	}
	return out
}

func (s *Sessions) Len() int { return len(s.items) }

func (s *Sessions) index(username string) int {
	name := strings.TrimSpace(username)
	for i := range s.items {
		if strings.EqualFold(s.items[i].Username, name) {
			return i
		}
	}
	return -1
}

func cloneSession(sess Session) Session {
	return Session{
		Username: strings.TrimSpace(sess.Username),
		History:  append([]string(nil), sess.History...),
	}
}

// FormatLine renders a session as "username,e4 e5 " for the flat store.
func FormatLine(sess Session) string {
	return sess.Username + "," + chess.Serialize(sess.History)
}

// ParseLine splits "username,moves" at the first comma.
func ParseLine(line string) (Session, bool) {
	name, moves, ok := strings.Cut(line, ",")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Session{}, false
	}
	return Session{Username: name, History: chess.Deserialize(moves)}, true
}

// ParseLines parses stored lines in order. It returns the sessions, the lines it could
// not parse and how many duplicate usernames were collapsed.
func ParseLines(lines []string) (*Sessions, []string, int) {
	sessions := &Sessions{}
	var (
		bad        []string
		duplicates int
	)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sess, ok := ParseLine(line)
		if !ok {
			bad = append(bad, line)
			continue
		}
		if sessions.index(sess.Username) >= 0 {
			duplicates++
		}
		sessions.Upsert(sess)
	}
	return sessions, bad, duplicates
}
