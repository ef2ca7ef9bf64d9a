package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_RunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	task := Schedule(time.Millisecond, time.Millisecond, func() { runs.Add(1) })

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)

	task.Cancel()
	task.Cancel()
	assert.True(t, task.Cancelled())

	// Allow an in-flight run to finish, then check no more are scheduled.
	time.Sleep(10 * time.Millisecond)
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestTask_RunsNeverOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	task := Schedule(0, time.Microsecond, func() {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
	})

	require.Eventually(t, func() bool { return task.Runs() >= 5 }, time.Second, time.Millisecond)
	task.Cancel()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestOnce(t *testing.T) {
	var runs atomic.Int32
	task := Once(time.Millisecond, func() { runs.Add(1) })

	require.Eventually(t, func() bool { return task.Runs() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestTask_CancelBeforeFirstRun(t *testing.T) {
	var runs atomic.Int32
	task := Schedule(50*time.Millisecond, time.Millisecond, func() { runs.Add(1) })
	task.Cancel()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}

func TestNilTaskCancel(t *testing.T) {
	var task *Task
	task.Cancel()
	assert.True(t, task.Cancelled())
}

func TestPoller_StartStop(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(func(context.Context) error {
		calls.Add(1)
		return nil
	}, zerolog.Nop())

	p.Start(time.Millisecond)
	assert.True(t, p.Running())
	assert.Equal(t, time.Millisecond, p.Status().Interval)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	p.Stop()
	assert.False(t, p.Running())
	assert.Zero(t, p.Status().Interval)
	assert.False(t, p.Status().LastSync.IsZero())
}

func TestPoller_RestartKeepsSingleTask(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller(func(context.Context) error {
		calls.Add(1)
		return nil
	}, zerolog.Nop())

	p.Start(time.Hour)
	p.Start(time.Hour)
	p.Start(time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)
	p.Stop()
}

func TestPoller_RecordsErrors(t *testing.T) {
	boom := errors.New("boom")
	p := NewPoller(func(context.Context) error { return boom }, zerolog.Nop())

	p.Start(time.Millisecond)
	require.Eventually(t, func() bool { return p.Status().State == SyncError }, time.Second, time.Millisecond)
	p.Stop()
	assert.Equal(t, "error", SyncError.String())
}
