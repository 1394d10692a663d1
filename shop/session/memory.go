package session

import (
	"sync"

	"github.com/m3rciful/shopbot/core/clock"
)

type entry struct {
	mu   sync.Mutex
	sess Session
}

// Store is an in-memory session store with a mutex per user.
type Store struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[int64]*entry
}

// NewStore constructs an empty Store. A nil clock uses real time.
func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock:   c,
		entries: make(map[int64]*entry),
	}
}

func (s *Store) entry(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{sess: New(userID)}
		s.entries[userID] = e
	}
	return e
}

// Get returns a copy of the user's session, creating the default one on
// first access.
func (s *Store) Get(userID int64) Session {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// Reset restores the user's session to defaults.
func (s *Store) Reset(userID int64) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess = New(userID)
	e.sess.UpdatedAt = s.clock.Now()
}

// Update runs fn on a copy of the session while holding the user's lock
// and stores the copy only if fn returns nil. The error from fn is
// returned unchanged. fn must not call back into the Store for the same
// user.
func (s *Store) Update(userID int64, fn func(*Session) error) error {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	draft := e.sess
	if err := fn(&draft); err != nil {
		return err
	}
	draft.UserID = userID
	draft.UpdatedAt = s.clock.Now()
	e.sess = draft
	return nil
}

// Len returns the number of sessions created so far.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
