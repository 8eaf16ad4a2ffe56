// Package worker handles flush tasks delivered by asynq. It must run in the
// same process as the batch buffer it drains.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/queue"
)

// Flusher is the part of the accumulator the worker needs.
type Flusher interface {
	DrainAndSend(ctx context.Context, trigger string) (batch.Report, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	flusher Flusher
	logger  *log.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(f Flusher, logger *log.Logger) *Processor {
	return &Processor{flusher: f, logger: logger}
}

// Handler registers the flush task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.FlushTask, p.handleFlush)
	return mux
}

func (p *Processor) handleFlush(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseFlushPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	trigger := payload.Trigger
	if trigger == "" {
		trigger = "schedule"
	}
	report, err := p.flusher.DrainAndSend(ctx, trigger)
	switch {
	case errors.Is(err, batch.ErrFlushInProgress):
		// Already logged by the accumulator; nothing to retry.
		return nil
	case err != nil:
		// The buffer kept its contents; the next firing retries.
		return fmt.Errorf("flush %s: %v: %w", report.ID, err, asynq.SkipRetry)
	}
	p.logger.Debug("flush task done", "slot", payload.Slot, "outcome", report.Outcome)
	return nil
}
