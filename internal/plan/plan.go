// Package plan implements the opaque fire-time iterators (spec §4.5)
// built from trigger options: "at" a specific instant, cron-like, and
// interval-like.
package plan

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind identifies which plan shape a set of Options describes.
type Kind string

const (
	KindAt       Kind = "at"
	KindCron     Kind = "cron"
	KindInterval Kind = "interval"
)

// Options is the opaque trigger plan payload (spec §3 "Plan options").
// Only the fields relevant to Kind are consulted.
type Options struct {
	Kind Kind

	// KindAt
	RunAt time.Time

	// KindCron
	CronExpr string
	Location *time.Location

	// KindInterval
	Interval      time.Duration
	IntervalStart time.Time // first candidate; zero means "start now"
}

// Plan is a pure, deterministic fire-time iterator: Next returns the
// first instant strictly after reference, or ok=false when exhausted.
type Plan interface {
	Next(reference time.Time) (t time.Time, ok bool)
}

// Build constructs a Plan from Options.
func Build(opts Options) (Plan, error) {
	switch opts.Kind {
	case KindAt:
		return &atPlan{runAt: opts.RunAt}, nil
	case KindCron:
		loc := opts.Location
		if loc == nil {
			loc = time.UTC
		}
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		sched, err := parser.Parse(opts.CronExpr)
		if err != nil {
			return nil, fmt.Errorf("plan: invalid cron expression %q: %w", opts.CronExpr, err)
		}
		return &cronPlan{schedule: sched, loc: loc}, nil
	case KindInterval:
		if opts.Interval <= 0 {
			return nil, fmt.Errorf("plan: interval must be positive, got %s", opts.Interval)
		}
		start := opts.IntervalStart
		if start.IsZero() {
			start = time.Now()
		}
		return &intervalPlan{interval: opts.Interval, start: start}, nil
	default:
		return nil, fmt.Errorf("plan: unknown kind %q", opts.Kind)
	}
}
