// Package historytest holds the behaviour every history.Store must share.
package historytest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/chiralgate/history"
	"github.com/jmcleod/chiralgate/session"
)

var base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// Outcome builds an outcome n seconds after a fixed base time.
func Outcome(id string, subject int64, kind session.OutcomeKind, n int) session.Outcome {
	return session.Outcome{
		ID:        id,
		SessionID: "s-" + id,
		SubjectID: subject,
		GroupID:   555,
		Admission: "notice",
		Kind:      kind,
		Attempts:  1,
		At:        base.Add(time.Duration(n) * time.Second),
	}
}

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) history.Store) {
	t.Run("EmptyList", func(t *testing.T) {
		s := open(t)
		got, total, err := s.List(10, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, 0, total)
	})

	t.Run("NewestFirst", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Append(Outcome("b", 2, session.OutcomeFailed, 20)))
		require.NoError(t, s.Append(Outcome("a", 1, session.OutcomePassed, 10)))
		require.NoError(t, s.Append(Outcome("c", 1, session.OutcomeExpired, 30)))

		got, total, err := s.List(10, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, session.OutcomeExpired, got[0].Kind)
		assert.True(t, got[0].At.Equal(base.Add(30*time.Second)))
	})

	t.Run("Paging", func(t *testing.T) {
		s := open(t)
		for i, id := range []string{"1", "2", "3", "4", "5"} {
			require.NoError(t, s.Append(Outcome(id, 9, session.OutcomePassed, i)))
		}
		got, total, err := s.List(2, 1)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, got, 2)
		assert.Equal(t, "4", got[0].ID)
		assert.Equal(t, "3", got[1].ID)

		got, _, err = s.List(2, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ForSubject", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Append(Outcome("x1", 100, session.OutcomeFailed, 1)))
		require.NoError(t, s.Append(Outcome("y1", 200, session.OutcomePassed, 2)))
		require.NoError(t, s.Append(Outcome("x2", 100, session.OutcomeApproved, 3)))

		got, err := s.ForSubject(100)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "x2", got[0].ID)
		assert.Equal(t, "x1", got[1].ID)

		got, err = s.ForSubject(300)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Recorder", func(t *testing.T) {
		s := open(t)
		rec := history.NewRecorder(s, nil)
		rec.Record(context.Background(), Outcome("r", 7, session.OutcomeRejected, 0))
		got, err := s.ForSubject(7)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, session.OutcomeRejected, got[0].Kind)
	})
}
