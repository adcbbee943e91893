package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

func randSuffix() string {
	n, err := rand.Int(rand.Reader, big.NewInt(36*36*36*36))
	if err != nil {
		return "0000"
	}
	return strconv.FormatInt(n.Int64(), 36)
}

func base36Time(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 36)
}

// newTriggerID generates "<job>-<base36-time>-<rand>" (spec §3).
func newTriggerID(job string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", job, base36Time(now), randSuffix())
}

// newRunID generates "<triggerId>:<base36-time>:<rand>" (spec §3).
func newRunID(triggerID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", triggerID, base36Time(now), randSuffix())
}

// newSchedulerID generates "scheduler-<rand>" (spec §6 default).
func newSchedulerID() string {
	return fmt.Sprintf("scheduler-%s%s", randSuffix(), randSuffix())
}
