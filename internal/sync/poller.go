package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"
)

// SyncState represents the current state of the message poll.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// String returns a short label for the state.
func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "syncing"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the outcome of the latest poll.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error

	// Interval is the active polling period, zero when stopped.
	Interval time.Duration
}

// FetchFunc performs one poll.
type FetchFunc func(ctx context.Context) error

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// Poller runs a fetch on a Task at a fixed interval and tracks its status.
// Start and Stop may be called repeatedly; at most one Task is live.
type Poller struct {
	fetch   FetchFunc
	timeout time.Duration
	log     zerolog.Logger

	mu     gosync.Mutex
	task   *Task
	status SyncStatus
}

// NewPoller creates a stopped poller around fetch.
func NewPoller(fetch FetchFunc, log zerolog.Logger) *Poller {
	return &Poller{
		fetch:   fetch,
		timeout: fetchTimeout,
		log:     log,
	}
}

// Start (re)starts polling every interval. The previous task, if any, is
// cancelled first. The first poll happens after one interval.
func (p *Poller) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.task.Cancel()
	p.task = Schedule(interval, interval, p.poll)
	p.status.Interval = interval
}

// Stop halts polling.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.task.Cancel()
	p.task = nil
	p.status.State = SyncIdle
	p.status.Interval = 0
}

// Running reports whether a poll task is scheduled.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task != nil && !p.task.Cancelled()
}

// Status returns the latest poll outcome.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// poll performs a single fetch operation with a timeout.
func (p *Poller) poll() {
	p.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.fetch(ctx); err != nil {
		p.log.Warn().Err(err).Msg("message poll failed")
		p.setStatus(SyncError, err)
		return
	}
	p.setStatus(SyncIdle, nil)
}

// setStatus updates the sync status.
func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = time.Now()
	}
}
