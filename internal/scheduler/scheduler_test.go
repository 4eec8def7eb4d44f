package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagereplay/sagereplay/internal/config"
	"github.com/sagereplay/sagereplay/internal/session"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(_ context.Context, creds *workflow.Credentials) (*session.Report, error) {
	r.calls.Add(1)
	return &session.Report{SessionID: "s"}, r.err
}

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *recordingPruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, nil
}

func TestNextCleanupTime(t *testing.T) {
	loc := time.UTC
	s := NewScheduler(config.ScheduleConfig{CleanupTime: "04:30"}, nil, nil)

	s.now = func() time.Time { return time.Date(2026, 5, 1, 1, 0, 0, 0, loc) }
	assert.Equal(t, time.Date(2026, 5, 1, 4, 30, 0, 0, loc), s.nextCleanupTime())

	s.now = func() time.Time { return time.Date(2026, 5, 1, 4, 30, 0, 0, loc) }
	assert.Equal(t, time.Date(2026, 5, 2, 4, 30, 0, 0, loc), s.nextCleanupTime())

	s.cfg.CleanupTime = "bogus"
	s.now = func() time.Time { return time.Date(2026, 5, 1, 23, 0, 0, 0, loc) }
	assert.Equal(t, time.Date(2026, 5, 2, 4, 0, 0, 0, loc), s.nextCleanupTime())
}

func TestPruneHistoryUsesRetention(t *testing.T) {
	p := &recordingPruner{}
	s := NewScheduler(config.ScheduleConfig{RetentionDays: 7}, nil, p)
	now := time.Date(2026, 5, 10, 4, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.pruneHistory(context.Background())

	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.AddDate(0, 0, -7), p.cutoffs[0])
}

func TestScheduledSessionsRepeat(t *testing.T) {
	r := &countingRunner{err: errors.New("gateway down")}
	s := NewScheduler(config.ScheduleConfig{RunIntervalSec: 1}, r, nil)
	s.runInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStartWithNothingEnabled(t *testing.T) {
	s := NewScheduler(config.ScheduleConfig{}, &countingRunner{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}
