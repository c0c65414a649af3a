package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler wraps the cron runner for recurring background jobs. Jobs are
// registered before Start; Stop waits for a running job to finish.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New creates a new scheduler
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Register adds a named job on a cron spec. Each invocation gets a fresh
// background context; a panicking job is logged and the schedule keeps
// running.
func (s *Scheduler) Register(spec, name string, job func(ctx context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked",
					zap.String("job", name),
					zap.Any("panic", r))
			}
		}()
		s.logger.Info("scheduled job starting", zap.String("job", name))
		job(context.Background())
		s.logger.Info("scheduled job finished", zap.String("job", name))
	})
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	return nil
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
