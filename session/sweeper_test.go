package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_SweepOnce(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))
	store.Create(newSession(1))
	store.Create(newSession(2))

	var got []Session
	sw := NewSweeper(store, func(_ context.Context, expired []Session) {
		got = append(got, expired...)
	}, time.Minute, nil)

	assert.Equal(t, 0, sw.SweepOnce(context.Background()))
	assert.Empty(t, got)

	clock.Advance(121 * time.Second)
	assert.Equal(t, 2, sw.SweepOnce(context.Background()))
	assert.Len(t, got, 2)

	assert.Equal(t, 0, sw.SweepOnce(context.Background()))
	assert.Len(t, got, 2)
}

func TestSweeper_RunResolvesAndStops(t *testing.T) {
	store := NewMemoryStore()
	s := newSession(7)
	s.Timeout = time.Millisecond
	store.Create(s)

	resolved := make(chan Session, 1)
	sw := NewSweeper(store, func(_ context.Context, expired []Session) {
		for _, e := range expired {
			resolved <- e
		}
	}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	select {
	case e := <-resolved:
		assert.Equal(t, int64(7), e.SubjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("expired session was not resolved")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_SweepsDoNotOverlap(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore(WithClock(clock.Now))

	var mu sync.Mutex
	active, maxActive := 0, 0
	sw := NewSweeper(store, func(context.Context, []Session) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}, time.Minute, nil)

	past := clock.Now().Add(-time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(subject int64) {
			defer wg.Done()
			s := newSession(subject)
			s.CreatedAt = past
			store.Create(s)
			sw.SweepOnce(context.Background())
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}
