package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// CronScheduler runs firings on an in-process robfig/cron instance.
type CronScheduler struct {
	*Plan
	cron    *cron.Cron
	flusher Flusher
	logger  *log.Logger
	timeout time.Duration
}

// NewCron registers one cron entry per slot. timeout bounds a single drain;
// zero means no bound.
func NewCron(plan *Plan, f Flusher, logger *log.Logger, timeout time.Duration) (*CronScheduler, error) {
	cl := cronLogger{logger}
	s := &CronScheduler{
		Plan:    plan,
		cron:    cron.New(cron.WithLocation(plan.Location), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		flusher: f,
		logger:  logger,
		timeout: timeout,
	}
	for _, spec := range plan.Specs {
		spec := spec
		if _, err := s.cron.AddFunc(spec, func() { s.fire(spec) }); err != nil {
			return nil, fmt.Errorf("register flush %q: %w", spec, err)
		}
	}
	return s, nil
}

func (s *CronScheduler) fire(spec string) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.logger.Info("scheduled flush firing", "slot", spec)
	// Failures are logged by the accumulator and retried by the next slot.
	_, _ = s.flusher.DrainAndSend(ctx, "schedule")
}

// Start begins firing in the background.
func (s *CronScheduler) Start() error {
	s.cron.Start()
	s.logger.Info("flush schedule started", "backend", "cron", "slots", s.Specs, "tz", s.Location.String())
	return nil
}

// Stop prevents new firings and waits for a running one, or for ctx.
func (s *CronScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("flush still running at shutdown"), ctx.Err())
	}
}

// cronLogger adapts charmbracelet/log to cron.Logger.
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
