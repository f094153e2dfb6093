package collab

import (
	"sync"
	"time"

	"github.com/PedroReis16/live-document-app-sub000/backend/internal/model"
)

// Debouncer collapses a burst of changes into one call of fire, wait after the last Call.
type Debouncer struct {
	clock Clock
	wait  time.Duration
	fire  func(model.Changes)

	mu       sync.Mutex
	timer    Timer
	gen      uint64
	pending  model.Changes
	canceled bool
}

func NewDebouncer(clock Clock, wait time.Duration, fire func(model.Changes)) *Debouncer {
	if clock == nil {
		clock = SystemClock
	}
	return &Debouncer{clock: clock, wait: wait, fire: fire}
}

// Call merges c into the pending changes and restarts the quiet window.
func (d *Debouncer) Call(c model.Changes) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.canceled {
		return
	}
	d.pending = d.pending.Merge(c)
	d.arm()
}

// Restore puts changes back without starting the window; the next Call carries them.
// Newer pending values win over restored ones.
func (d *Debouncer) Restore(c model.Changes) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.canceled {
		return
	}
	d.pending = c.Merge(d.pending)
}

// Drop discards pending changes and stops the window. The debouncer stays usable.
func (d *Debouncer) Drop() model.Changes {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.pending
	d.pending = model.Changes{}
	d.disarm()
	return c
}

// Cancel drops pending changes and turns every later Call into a no-op.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.canceled = true
	d.pending = model.Changes{}
	d.disarm()
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.pending.Empty()
}

func (d *Debouncer) arm() {
	d.disarm()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.wait, func() { d.flush(gen) })
}

// disarm stops the timer and invalidates a callback that may already be running.
func (d *Debouncer) disarm() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) flush(gen uint64) {
	d.mu.Lock()
	if d.canceled || gen != d.gen || d.pending.Empty() {
		d.mu.Unlock()
		return
	}
	c := d.pending
	d.pending = model.Changes{}
	d.timer = nil
	d.mu.Unlock()
	d.fire(c)
}
