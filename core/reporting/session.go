package reporting

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Ticket tags one fetch with the selection it was started for.
type Ticket struct {
	ID  string
	Key string // selection snapshot, e.g. "scores math 2024-02"
	gen uint64
}

// Session keeps track of the newest selection of one interactive user.
// Results of fetches started for an older selection are discarded on Commit.
type Session struct {
	mu     sync.Mutex
	gen    uint64
	cur    Ticket
	cancel context.CancelFunc
}

func NewSession() *Session {
	return &Session{}
}

// Select makes `key` the current selection and returns its ticket.
func (s *Session) Select(key string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(key)
}

func (s *Session) selectLocked(key string) Ticket {
	s.gen++
	s.cur = Ticket{ID: uuid.New().String(), Key: key, gen: s.gen}
	return s.cur
}

// Begin is Select plus a context for the fetch: starting a new selection cancels the
// context of the one it supersedes.
func (s *Session) Begin(ctx context.Context, key string) (Ticket, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return s.selectLocked(key), fctx
}

func (s *Session) Current() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *Session) IsCurrent(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.gen != 0 && t.gen == s.gen
}

// Commit runs `apply` only if `t` is still the current ticket, and reports whether it did.
// `apply` runs under the session lock, so no newer selection can slip in before it returns.
func (s *Session) Commit(t Ticket, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.gen == 0 || t.gen != s.gen {
		return false
	}
	if apply != nil {
		apply()
	}
	return true
}

// Close cancels the pending fetch, if any.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
