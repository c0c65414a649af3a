package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterRejectsInvalidSpec(t *testing.T) {
	s := New(zap.NewNop())
	err := s.Register("not a cron spec", "bad", func(context.Context) {})
	assert.Error(t, err)
}

func TestScheduledJobRuns(t *testing.T) {
	s := New(zap.NewNop())

	var runs atomic.Int64
	require.NoError(t, s.Register("@every 100ms", "tick", func(context.Context) {
		runs.Add(1)
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPanickingJobDoesNotStopScheduler(t *testing.T) {
	s := New(zap.NewNop())

	var runs atomic.Int64
	require.NoError(t, s.Register("@every 100ms", "panicky", func(context.Context) {
		runs.Add(1)
		panic("boom")
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStopWaitsForJobs(t *testing.T) {
	s := New(zap.NewNop())

	var once sync.Once
	started := make(chan struct{})
	done := make(chan struct{})
	require.NoError(t, s.Register("@every 10ms", "slow", func(context.Context) {
		once.Do(func() {
			close(started)
			time.Sleep(100 * time.Millisecond)
			close(done)
		})
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}
	s.Stop()

	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the running job finished")
	}
}
