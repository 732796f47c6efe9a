package session

import (
	"sync"
	"time"
)

// Debouncer schedules a single deferred callback. Arm cancels any previously
// scheduled callback before scheduling the new one, which is exactly the
// clear-then-set timer dance both typing timers need.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Arm schedules fn to run after d, replacing any pending callback.
func (db *Debouncer) Arm(d time.Duration, fn func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.timer != nil {
		db.timer.Stop()
	}
	db.timer = time.AfterFunc(d, fn)
}

// Stop cancels the pending callback, if any.
func (db *Debouncer) Stop() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
}
