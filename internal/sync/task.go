package sync

import (
	gosync "sync"
	"time"
)

// Task is a scheduled job with a cancel handle. Each run schedules the
// next one only after it returns, so runs never overlap and a slow run
// delays the following one instead of piling up.
type Task struct {
	interval time.Duration
	fn       func()

	mu        gosync.Mutex
	timer     *time.Timer
	cancelled bool
	runs      int
}

// Schedule runs fn after first, then every interval. An interval <= 0
// makes the task one-shot.
func Schedule(first, interval time.Duration, fn func()) *Task {
	t := &Task{interval: interval, fn: fn}

	t.mu.Lock()
	t.timer = time.AfterFunc(first, t.run)
	t.mu.Unlock()

	return t
}

// Once runs fn a single time after delay.
func Once(delay time.Duration, fn func()) *Task {
	return Schedule(delay, 0, fn)
}

func (t *Task) run() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.fn()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	if t.cancelled || t.interval <= 0 {
		return
	}
	t.timer = time.AfterFunc(t.interval, t.run)
}

// Cancel stops the task. A run already in progress completes but does
// not reschedule. Cancel is idempotent and safe on a nil Task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Runs reports how many runs have completed.
func (t *Task) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}
