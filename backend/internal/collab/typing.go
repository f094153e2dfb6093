package collab

import (
	"sync"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/docstore"
	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

// TypingTracker keeps one pending expiry per user. A new signal re-arms it instead of stacking timers.
type TypingTracker struct {
	clock  Clock
	window time.Duration
	store  *docstore.Store

	mu     sync.Mutex
	gen    uint64
	timers map[string]typingTimer
}

type typingTimer struct {
	timer Timer
	gen   uint64
}

func NewTypingTracker(clock Clock, window time.Duration, store *docstore.Store) *TypingTracker {
	if clock == nil {
		clock = SystemClock
	}
	if window <= 0 {
		window = 2 * time.Second
	}
	return &TypingTracker{clock: clock, window: window, store: store, timers: make(map[string]typingTimer)}
}

// Touch marks userID typing and restarts its window.
func (t *TypingTracker) Touch(userID string) {
	t.mu.Lock()
	if cur, ok := t.timers[userID]; ok {
		cur.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timers[userID] = typingTimer{gen: gen, timer: t.clock.AfterFunc(t.window, func() { t.expire(userID, gen) })}
	t.mu.Unlock()

	if !t.store.SetTyping(userID, true) {
		t.store.AddCollaborator(model.Collaborator{ID: userID, Status: model.StatusOnline, Typing: true})
	}
}

// Forget drops the pending expiry of userID and clears its typing flag.
func (t *TypingTracker) Forget(userID string) {
	t.mu.Lock()
	cur, ok := t.timers[userID]
	if ok {
		cur.timer.Stop()
		delete(t.timers, userID)
	}
	t.mu.Unlock()
	if ok {
		t.store.SetTyping(userID, false)
	}
}

// Stop cancels every pending expiry.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, cur := range t.timers {
		cur.timer.Stop()
		delete(t.timers, id)
	}
	t.gen++
}

func (t *TypingTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

func (t *TypingTracker) expire(userID string, gen uint64) {
	t.mu.Lock()
	cur, ok := t.timers[userID]
	if !ok || cur.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.timers, userID)
	t.mu.Unlock()

	// presence decays with the typing signal
	t.store.SetTyping(userID, false)
	t.store.UpdateStatus(userID, model.StatusOffline)
}
