// Package scheduler provides scheduling logic for LeadPipe.
//
// It runs background jobs (such as the follow-up cycle) on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts the standard 5-field expressions (min, hour, dom, month, dow) and
// descriptors such as "@hourly" or "@every 1h".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Loop runs a job on a cron schedule until its context is cancelled. Runs never overlap:
// the next activation is computed after the previous run returns.
type Loop struct {
	name     string
	schedule cron.Schedule
	job      func(ctx context.Context)
	now      func() time.Time
	after    func(d time.Duration) <-chan time.Time
}

// NewLoop parses expr and returns a Loop for job. It returns an error if the expression
// is invalid.
func NewLoop(name, expr string, job func(ctx context.Context)) (*Loop, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", expr, name, err)
	}
	return &Loop{name: name, schedule: schedule, job: job, now: time.Now, after: time.After}, nil
}

// Run blocks until ctx is cancelled. Cancellation during the wait returns without
// starting another run; a run already in progress sees the cancelled context.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("Loop.Run: started", "loop", l.name)
	for {
		now := l.now()
		next := l.schedule.Next(now)
		select {
		case <-ctx.Done():
			slog.Info("Loop.Run: stopped", "loop", l.name)
			return
		case <-l.after(next.Sub(now)):
		}
		if ctx.Err() != nil {
			slog.Info("Loop.Run: stopped", "loop", l.name)
			return
		}
		l.RunOnce(ctx)
	}
}

// RunOnce runs the job a single time, recovering from a panic in the job body.
func (l *Loop) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Loop.RunOnce: job panicked", "loop", l.name, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	start := l.now()
	l.job(ctx)
	slog.Debug("Loop.RunOnce: job finished", "loop", l.name, "duration", l.now().Sub(start))
}
