package plan

import "time"

// atPlan fires exactly once, at runAt. It never produces a second
// instant: after that fire (or any reference at/after it), Next reports
// exhaustion.
type atPlan struct {
	runAt time.Time
}

func (p *atPlan) Next(reference time.Time) (time.Time, bool) {
	if p.runAt.After(reference) {
		return p.runAt, true
	}
	return time.Time{}, false
}
