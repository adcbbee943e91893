package plan

import (
	"time"

	"github.com/robfig/cron/v3"
)

// cronPlan wraps a robfig/cron/v3 schedule, the Planner collaborator
// spec.md delegates cron-expression parsing to.
type cronPlan struct {
	schedule cron.Schedule
	loc      *time.Location
}

func (p *cronPlan) Next(reference time.Time) (time.Time, bool) {
	next := p.schedule.Next(reference.In(p.loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
