package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Scheduler runs fn once at the given time. Scheduling a key that is
// already pending is a no-op.
type Scheduler interface {
	Schedule(key string, at time.Time, fn func())
}

// TimerScheduler is an in-process Scheduler. Pending work is lost on exit;
// the backend resumes it from the shared cart read models on startup.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *TimerScheduler) Schedule(key string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, ok := s.timers[key]; ok {
		return
	}
	s.timers[key] = time.AfterFunc(time.Until(at), func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Pending returns the number of scheduled runs that have not fired yet.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending runs and refuses new ones.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

var slotLayouts = []string{"3pm", "3:04pm", "15:04"}

// NextOccurrence returns the next time of day named by slot ("6pm",
// "9:30am", "18:00") at or after now, in now's location.
func NextOccurrence(slot string, now time.Time) (time.Time, error) {
	normalized := strings.ToLower(strings.ReplaceAll(slot, " ", ""))
	for _, layout := range slotLayouts {
		t, err := time.Parse(layout, normalized)
		if err != nil {
			continue
		}
		next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if next.Before(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized slot %q", slot)
}

// keyedMutex serializes work per key. Wallet debits run under the owner's
// key; cart changes under the cart's key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires every key in sorted order and returns the release func.
func (k *keyedMutex) Lock(keys ...string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	unique := sorted[:0]
	for i, key := range sorted {
		if i == 0 || key != sorted[i-1] {
			unique = append(unique, key)
		}
	}

	held := make([]*keyLock, 0, len(unique))
	for _, key := range unique {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, unique[i])
			}
			k.mu.Unlock()
		}
	}
}

func ownerKey(id string) string  { return "owner:" + id }
func cartKey(id string) string   { return "cart:" + id }
func sharedKey(id string) string { return "shared:" + id }
func orderKey(id string) string  { return "order:" + id }
