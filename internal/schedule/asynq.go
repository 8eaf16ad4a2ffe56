package schedule

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/RegiDesk/internal/queue"
	"github.com/dharsanguruparan/RegiDesk/internal/worker"
)

// AsynqScheduler registers the slots as periodic asynq tasks and consumes
// them with a single-worker server in this process. Redis only carries the
// trigger; the buffer itself stays in memory here.
type AsynqScheduler struct {
	*Plan
	scheduler *asynq.Scheduler
	server    *asynq.Server
	handler   asynq.Handler
	logger    *log.Logger
}

// NewAsynq wires the scheduler and the flush consumer against redisOpt.
func NewAsynq(plan *Plan, redisOpt asynq.RedisClientOpt, f Flusher, logger *log.Logger) (*AsynqScheduler, error) {
	al := asynqLogger{logger}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: plan.Location,
		Logger:   al,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("enqueue flush task failed", "err", err)
			}
		},
	})
	for _, spec := range plan.Specs {
		task, err := queue.NewFlushTask(queue.FlushPayload{Trigger: "schedule", Slot: spec})
		if err != nil {
			return nil, err
		}
		if _, err := scheduler.Register(spec, task); err != nil {
			return nil, fmt.Errorf("register flush %q: %w", spec, err)
		}
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		// One at a time; overlapping drains would only be skipped anyway.
		Concurrency: 1,
		Queues:      map[string]int{queue.FlushQueue: 1},
		Logger:      al,
	})
	return &AsynqScheduler{
		Plan:      plan,
		scheduler: scheduler,
		server:    server,
		handler:   worker.NewProcessor(f, logger).Handler(),
		logger:    logger,
	}, nil
}

// Start launches both the consumer and the periodic enqueuer.
func (s *AsynqScheduler) Start() error {
	if err := s.server.Start(s.handler); err != nil {
		return fmt.Errorf("start flush worker: %w", err)
	}
	if err := s.scheduler.Start(); err != nil {
		s.server.Shutdown()
		return fmt.Errorf("start flush scheduler: %w", err)
	}
	s.logger.Info("flush schedule started", "backend", "asynq", "slots", s.Specs, "tz", s.Location.String())
	return nil
}

// Stop shuts down the enqueuer, then the consumer, which waits for an active
// flush up to asynq's shutdown timeout.
func (s *AsynqScheduler) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.scheduler.Shutdown()
		s.server.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// asynqLogger adapts charmbracelet/log to asynq.Logger.
type asynqLogger struct{ l *log.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...)) }
