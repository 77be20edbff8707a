// Package schedule triggers jobs on a cron expression.
package schedule

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs registered jobs on their cron expressions.
type Scheduler struct {
	s *gocron.Scheduler
}

// New creates a Scheduler evaluating cron expressions in the named time
// zone. An empty name means UTC.
func New(timezone string) (*Scheduler, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid time zone %q: %w", timezone, err)
		}
	}
	return &Scheduler{s: gocron.NewScheduler(loc)}, nil
}

// Register adds fn to run on the standard five field cron expression.
func (sc *Scheduler) Register(expr string, fn func()) error {
	if _, err := sc.s.Cron(expr).Do(fn); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Next returns the next run time of the earliest job.
func (sc *Scheduler) Next() time.Time {
	_, next := sc.s.NextRun()
	return next
}

// Start runs the scheduler in the background.
func (sc *Scheduler) Start() {
	sc.s.StartAsync()
}

// Stop halts the scheduler.
func (sc *Scheduler) Stop() {
	sc.s.Stop()
}
