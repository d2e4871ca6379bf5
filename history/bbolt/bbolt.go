// Package bbolt provides a BBolt-backed outcome history.
package bbolt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/chiralgate/history"
	"github.com/jmcleod/chiralgate/session"
)

var (
	outcomesBucket = []byte("outcomes")
	subjectsBucket = []byte("subjects")
)

// keyTime is fixed width so keys sort chronologically.
const keyTime = "2006-01-02T15:04:05.000000000Z"

// Store implements history.Store backed by a BBolt database.
//
// Outcomes live in the "outcomes" bucket under "<time>:<id>". The
// "subjects" bucket indexes them as "<subject>:<time>:<id>" with empty
// values.
type Store struct {
	db *bbolt.DB
}

var _ history.Store = (*Store)(nil)

// New returns a Store backed by db, creating its buckets if needed.
func New(db *bbolt.DB) (*Store, error) {
	if !db.IsReadOnly() {
		err := db.Update(func(tx *bbolt.Tx) error {
			for _, name := range [][]byte{outcomesBucket, subjectsBucket} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("creating buckets: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Open opens the BBolt database at path.
func Open(path string, options *bbolt.Options) (*Store, error) {
	if options == nil {
		options = &bbolt.Options{Timeout: time.Second}
	}
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens path without taking the write lock, so it can be read
// while a server holds the file.
func OpenReadOnly(path string) (*Store, error) {
	return Open(path, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func outcomeKey(o session.Outcome) []byte {
	return []byte(o.At.UTC().Format(keyTime) + ":" + o.ID)
}

func subjectPrefix(subjectID int64) []byte {
	return []byte(fmt.Sprintf("%020d:", subjectID))
}

func (s *Store) Append(o session.Outcome) error {
	if o.ID == "" {
		return errors.New("outcome has no id")
	}
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	key := outcomeKey(o)
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(outcomesBucket).Put(key, data); err != nil {
			return err
		}
		idx := append(subjectPrefix(o.SubjectID), key...)
		return tx.Bucket(subjectsBucket).Put(idx, nil)
	})
}

func (s *Store) List(limit, offset int) ([]session.Outcome, int, error) {
	var (
		out   []session.Outcome
		total int
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(outcomesBucket)
		if b == nil {
			return nil
		}
		total = b.Stats().KeyN
		c := b.Cursor()
		skipped := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(out) >= limit {
				break
			}
			var o session.Outcome
			if err := json.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			out = append(out, o)
		}
		return nil
	})
	return out, total, err
}

func (s *Store) ForSubject(subjectID int64) ([]session.Outcome, error) {
	var out []session.Outcome
	prefix := subjectPrefix(subjectID)
	err := s.db.View(func(tx *bbolt.Tx) error {
		idx, outcomes := tx.Bucket(subjectsBucket), tx.Bucket(outcomesBucket)
		if idx == nil || outcomes == nil {
			return nil
		}
		c := idx.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			data := outcomes.Get(k[len(prefix):])
			if data == nil {
				continue
			}
			var o session.Outcome
			if err := json.Unmarshal(data, &o); err != nil {
				return fmt.Errorf("decoding %s: %w", k, err)
			}
			out = append(out, o)
		}
		return nil
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, err
}
