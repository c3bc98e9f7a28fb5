package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

const CookieName = "session_id"

// Session is the server-side state for one browser session: the CSRF
// token handed to the login form and, after authentication, the
// customer it belongs to. Writes go through the per-session mutex so
// two concurrent requests on the same session cannot interleave.
type Session struct {
	ID        string
	ExpiresAt time.Time

	mu         sync.Mutex
	csrfToken  string
	customerID string
	role       string
}

// RotateCSRF issues a fresh CSRF token and returns it.
func (s *Session) RotateCSRF() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrfToken = uuid.NewString()
	return s.csrfToken
}

func (s *Session) CSRFToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

// SetCustomer stores the authenticated account in the session.
func (s *Session) SetCustomer(customerID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customerID = customerID
	s.role = role
}

func (s *Session) Customer() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerID, s.role
}

// Store keeps sessions in process memory. Expired entries are dropped
// lazily on Get and in bulk by Sweep.
type Store struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Store{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (st *Store) Create() (*Session, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:        hex.EncodeToString(idBytes),
		ExpiresAt: st.now().Add(st.ttl),
	}

	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.mu.Unlock()

	return sess, nil
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if st.now().After(sess.ExpiresAt) {
		st.Destroy(id)
		return nil, false
	}

	return sess, true
}

func (st *Store) Destroy(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Sweep removes expired sessions and reports how many were dropped.
func (st *Store) Sweep() int {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, sess := range st.sessions {
		if now.After(sess.ExpiresAt) {
			delete(st.sessions, id)
			removed++
		}
	}

	return removed
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
