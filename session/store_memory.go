package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a thread-safe in-memory Store. Sessions are lost on
// restart; an applicant caught mid-verification simply applies again.
type MemoryStore struct {
	mu   sync.Mutex
	data map[int64]Session
	// lapsed holds sessions found expired outside DrainExpired. They are no
	// longer live but still owe an expiry outcome.
	lapsed []Session
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		data: make(map[int64]Session),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(session Session) Session {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if prev, ok := s.data[session.SubjectID]; ok && prev.Expired(now) {
		s.lapsed = append(s.lapsed, prev)
	}
	s.data[session.SubjectID] = session
	return session
}

func (s *MemoryStore) Get(subjectID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(subjectID, "")
}

func (s *MemoryStore) Remove(subjectID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.data[subjectID]
	if ok {
		delete(s.data, subjectID)
	}
	return session, ok
}

func (s *MemoryStore) Claim(subjectID int64, sessionID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.liveLocked(subjectID, sessionID)
	if !ok {
		return Session{}, false
	}
	delete(s.data, subjectID)
	return session, true
}

func (s *MemoryStore) IncrementAttempt(subjectID int64) int {
	session, ok := s.IncrementAttemptFor(subjectID, "")
	if !ok {
		return 0
	}
	return session.AttemptsUsed
}

func (s *MemoryStore) IncrementAttemptFor(subjectID int64, sessionID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.liveLocked(subjectID, sessionID)
	if !ok {
		return Session{}, false
	}
	session.AttemptsUsed++
	if session.AttemptsUsed >= session.MaxAttempts {
		session.AttemptsUsed = session.MaxAttempts
		delete(s.data, subjectID)
	} else {
		s.data[subjectID] = session
	}
	return session, true
}

func (s *MemoryStore) DrainExpired() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	expired := s.lapsed
	s.lapsed = nil
	for id, session := range s.data {
		if session.Expired(now) {
			expired = append(expired, session)
			delete(s.data, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	return expired
}

func (s *MemoryStore) Snapshot() []Session {
	s.mu.Lock()
	now := s.now()
	out := make([]Session, 0, len(s.data))
	for _, session := range s.data {
		if !session.Expired(now) {
			out = append(out, session)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// liveLocked returns the live session for subjectID, parking it in lapsed
// if it has expired. Caller must hold s.mu.
func (s *MemoryStore) liveLocked(subjectID int64, sessionID string) (Session, bool) {
	session, ok := s.data[subjectID]
	if !ok {
		return Session{}, false
	}
	if session.Expired(s.now()) {
		delete(s.data, subjectID)
		s.lapsed = append(s.lapsed, session)
		return Session{}, false
	}
	if sessionID != "" && session.ID != sessionID {
		return Session{}, false
	}
	return session, true
}
