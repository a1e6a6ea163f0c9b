package command

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

	tests := []struct {
		slot string
		want time.Time
	}{
		{"6pm", time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)},
		{"6:00PM", time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)},
		{"10:30am", time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)},
		{"9am", time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)},
		{"07:45", time.Date(2026, 3, 3, 7, 45, 0, 0, time.UTC)},
		{"10:15", now},
	}
	for _, tt := range tests {
		t.Run(tt.slot, func(t *testing.T) {
			got, err := NextOccurrence(tt.slot, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_Invalid(t *testing.T) {
	_, err := NextOccurrence("teatime", time.Now())

	assert.Error(t, err)
}

func TestTimerScheduler_RunsOnce(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()
	done := make(chan struct{})
	var runs atomic.Int32

	s.Schedule("k", time.Now(), func() {
		runs.Add(1)
		close(done)
	})
	s.Schedule("k", time.Now(), func() { runs.Add(1) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled func did not run")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestTimerScheduler_Stop(t *testing.T) {
	s := NewTimerScheduler()
	var ran atomic.Bool

	s.Schedule("k", time.Now().Add(time.Hour), func() { ran.Store(true) })
	require.Equal(t, 1, s.Pending())
	s.Stop()
	s.Schedule("other", time.Now(), func() { ran.Store(true) })

	assert.Equal(t, 0, s.Pending())
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()
	var wg sync.WaitGroup
	var inside, maxInside atomic.Int32

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("owner:alice", "cart:1", "owner:alice")
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, locks.locks)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}
