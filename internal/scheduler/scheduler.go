package scheduler

import (
	"context"
	"time"

	"condor/internal/logger"
)

// IntervalScheduler runs a task on a fixed cadence until the context is
// cancelled. Ticks are not allowed to pile up: a task running longer than the
// interval simply delays the next tick.
type IntervalScheduler struct {
	Interval       time.Duration
	Name           string
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewIntervalScheduler(ctx context.Context, interval time.Duration) *IntervalScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &IntervalScheduler{
		Interval: interval,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start blocks running the loop. It returns when the context is done.
func (s *IntervalScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("IntervalScheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}

	startAt := s.nowFn().UTC()
	logger.Infof("IntervalScheduler[%s]: started interval=%s run_immediately=%v at=%s",
		s.Name, s.Interval, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	timer := time.NewTimer(s.Interval)
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("IntervalScheduler[%s]: ctx done, exit (uptime=%s)",
				s.Name, s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		case <-timer.C:
		}
		task()
		timer.Reset(s.Interval)
	}
}
