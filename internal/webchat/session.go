package webchat

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tdcoflosgatos/studio-assistant/internal/booking"
	"github.com/tdcoflosgatos/studio-assistant/internal/conversation"
)

// sessionIdleTTL is how long an idle session survives before the sweeper
// drops it. The redis-backed transcript outlives the in-memory session, so a
// returning visitor keeps their history even after a sweep.
const sessionIdleTTL = 24 * time.Hour

// Session is the per-visitor chat state: the preferences extracted so far and
// the visitor's own booking flow. Nothing here is shared across visitors.
type Session struct {
	ID          string
	Preferences conversation.Preferences
	Booking     *booking.Machine
	LastSeen    time.Time

	mu sync.Mutex
}

// Lock serializes access for visitors using both the socket and the HTTP
// fallback at once.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// MachineFactory builds a booking machine bound to one conversation, so the
// submission carries that conversation's transcript.
type MachineFactory func(conversationID string) *booking.Machine

// SessionStore tracks live sessions in memory.
type SessionStore struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	newMachine MachineFactory
	now        func() time.Time
}

// NewSessionStore creates the store.
func NewSessionStore(newMachine MachineFactory) *SessionStore {
	if newMachine == nil {
		panic("webchat: machine factory cannot be nil")
	}
	return &SessionStore{
		sessions:   make(map[string]*Session),
		newMachine: newMachine,
		now:        time.Now,
	}
}

// Get returns the session for id, creating it (and a fresh booking machine)
// on first sight. An empty id gets a newly generated one.
func (s *SessionStore) Get(id string) *Session {
	if id == "" {
		id = generateSessionID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{
			ID:      id,
			Booking: s.newMachine(id),
		}
		s.sessions[id] = sess
	}
	sess.LastSeen = s.now()
	return sess
}

// ResetBooking replaces the session's booking machine with a fresh one.
// Used when a confirmed visitor wants to book another call.
func (s *SessionStore) ResetBooking(sess *Session) {
	sess.Booking = s.newMachine(sess.ID)
}

// Sweep drops sessions idle past the TTL and reports how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-sessionIdleTTL)
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the live session count.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}
