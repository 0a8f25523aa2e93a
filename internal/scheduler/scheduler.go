// Package scheduler runs a job on an RFC 5545 recurrence rule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultSchedule fires once a day at midnight.
const DefaultSchedule = "FREQ=DAILY;BYHOUR=0;BYMINUTE=0;BYSECOND=0"

// Job is one scheduled run. It receives the time it was fired for.
type Job func(ctx context.Context, at time.Time) error

// ParseSchedule parses an RRULE string (with or without the "RRULE:" prefix)
// anchored at dtstart in the location of dtstart.
func ParseSchedule(rule string, dtstart time.Time) (*rrule.RRule, error) {
	rule = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if rule == "" {
		rule = DefaultSchedule
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", rule, err)
	}
	opt.Dtstart = dtstart.Truncate(time.Second)
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", rule, err)
	}
	return r, nil
}

type Scheduler struct {
	name string
	rule *rrule.RRule
	job  Job

	runOnStart bool
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
	kick       chan struct{}
}

type Option func(*Scheduler)

// WithClock replaces the wall clock and timer, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.after = after
	}
}

// WithoutStartupRun skips the run that normally happens when Run starts.
func WithoutStartupRun() Option {
	return func(s *Scheduler) { s.runOnStart = false }
}

func New(name, rule string, job Job, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		name:       name,
		job:        job,
		runOnStart: true,
		now:        time.Now,
		after:      time.After,
		kick:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	r, err := ParseSchedule(rule, s.now())
	if err != nil {
		return nil, err
	}
	s.rule = r
	return s, nil
}

// Next returns the first occurrence strictly after t, or the zero time if
// the rule has no more occurrences.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.rule.After(t, false)
}

// Trigger requests an immediate run. It never blocks; a pending request
// absorbs further ones.
func (s *Scheduler) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. A run that has started is allowed to
// finish even if ctx is cancelled meanwhile.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := slog.With("component", "scheduler", "job", s.name)
	logger.Info("Scheduler started", "schedule", s.rule.String())

	if s.runOnStart {
		s.fire(ctx, logger, s.now())
	}

	for {
		now := s.now()
		next := s.Next(now)
		if next.IsZero() {
			logger.Info("Schedule has no further occurrences")
			<-ctx.Done()
			return nil
		}
		logger.Debug("Next run scheduled", "at", next)

		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return nil
		case <-s.after(next.Sub(now)):
			s.fire(ctx, logger, next)
		case <-s.kick:
			s.fire(ctx, logger, s.now())
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, logger *slog.Logger, at time.Time) {
	start := time.Now()
	if err := s.job(context.WithoutCancel(ctx), at); err != nil {
		logger.Error("Scheduled run failed", "at", at, "error", err)
		return
	}
	logger.Debug("Scheduled run completed", "at", at, "duration", time.Since(start))
}
