package engine

import (
	"time"

	"github.com/minisource/jobkeeper/internal/plan"
)

// expandMisfire decides which occurrence(s) of scheduledAt..now to run
// and what the trigger's next fire instant should be, per the misfire
// policy (spec §4.9.4). p.Next always returns a time strictly after its
// argument, so scheduledAt itself (already due) must be seeded as the
// first occurrence explicitly.
//
// Occurrences more than tolerance behind now are genuinely late. The
// first occurrence within tolerance of now (now.Sub(n) <= tolerance,
// which includes n == now) is the landing point: it is due "on time"
// and is never itself treated as a misfire, regardless of policy.
//
// Not late: runs the single due occurrence.
// skip: runs nothing; the trigger advances straight to the landing
// occurrence so it fires normally, un-misfired, on a later tick.
// fire-now: runs only the most recent occurrence, i.e. the landing one.
// catch-up: runs every occurrence from scheduledAt through the landing
// one, oldest first, capped at maxSkip.
//
// skipped counts the occurrences strictly between scheduledAt and the
// landing point — the ones genuinely skipped by policy skip — for
// logging (spec §8 scenario 3).
func expandMisfire(p plan.Plan, policy MisfirePolicy, scheduledAt, now time.Time, tolerance time.Duration, maxSkip int) (toRun []time.Time, next time.Time, ok bool, skipped int) {
	if maxSkip <= 0 {
		maxSkip = hardMaxMisfireSkip
	}

	if !now.After(scheduledAt) || now.Sub(scheduledAt) <= tolerance {
		next, ok = p.Next(scheduledAt)
		return []time.Time{scheduledAt}, next, ok, 0
	}

	occurrences := []time.Time{scheduledAt}
	cursor := scheduledAt
	landed := false
	for skipped < maxSkip {
		n, nok := p.Next(cursor)
		if !nok {
			next, ok = n, nok
			landed = true
			break
		}
		if now.Sub(n) <= tolerance {
			occurrences = append(occurrences, n)
			next, ok = n, true
			landed = true
			break
		}
		occurrences = append(occurrences, n)
		skipped++
		cursor = n
	}
	if !landed {
		next, ok = p.Next(cursor)
	}

	switch policy {
	case MisfireFireNow:
		return occurrences[len(occurrences)-1:], next, ok, skipped
	case MisfireCatchUp:
		return occurrences, next, ok, skipped
	default: // MisfireSkip and unset
		return nil, next, ok, skipped
	}
}
