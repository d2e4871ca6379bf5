// Package memory provides a thread-safe in-memory outcome history.
// Suitable for testing and runs without a data directory.
package memory

import (
	"sort"
	"sync"

	"github.com/jmcleod/chiralgate/history"
	"github.com/jmcleod/chiralgate/session"
)

// Store is a thread-safe in-memory history.Store.
type Store struct {
	mu   sync.RWMutex
	data []session.Outcome
}

var _ history.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

func (s *Store) Append(o session.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.data), func(i int) bool { return s.data[i].At.After(o.At) })
	s.data = append(s.data, session.Outcome{})
	copy(s.data[i+1:], s.data[i:])
	s.data[i] = o
	return nil
}

func (s *Store) List(limit, offset int) ([]session.Outcome, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []session.Outcome
	for i := len(s.data) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.data[i])
	}
	return out, len(s.data), nil
}

func (s *Store) ForSubject(subjectID int64) ([]session.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []session.Outcome
	for i := len(s.data) - 1; i >= 0; i-- {
		if s.data[i].SubjectID == subjectID {
			out = append(out, s.data[i])
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
