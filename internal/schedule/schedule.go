// Package schedule fires batch drains at the configured wall-clock times.
// Each firing is independent: it calls DrainAndSend and forgets about it.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/config"
)

// Flusher is the part of the accumulator the scheduler drives.
type Flusher interface {
	DrainAndSend(ctx context.Context, trigger string) (batch.Report, error)
}

// Scheduler is implemented by the cron and asynq backends.
type Scheduler interface {
	Start() error
	Stop(ctx context.Context) error
	// Next lists the next firing of every configured slot after t, earliest
	// first.
	Next(t time.Time) []time.Time
}

// Plan is the parsed set of flush slots in one time zone.
type Plan struct {
	Location  *time.Location
	Specs     []string
	schedules []cron.Schedule
}

// NewPlan parses "HH:MM" times or cron expressions.
func NewPlan(times []string, loc *time.Location) (*Plan, error) {
	if len(times) == 0 {
		return nil, errors.New("no flush times configured")
	}
	if loc == nil {
		loc = time.Local
	}
	p := &Plan{Location: loc}
	for _, t := range times {
		spec, err := config.CronSpec(t)
		if err != nil {
			return nil, err
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("flush time %q: %w", t, err)
		}
		p.Specs = append(p.Specs, spec)
		p.schedules = append(p.schedules, sched)
	}
	return p, nil
}

// Next implements Scheduler.Next for every backend.
func (p *Plan) Next(t time.Time) []time.Time {
	local := t.In(p.Location)
	out := make([]time.Time, 0, len(p.schedules))
	for _, s := range p.schedules {
		out = append(out, s.Next(local))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
