package engine

import (
	"time"

	"github.com/minisource/jobkeeper/internal/clock"
	"github.com/minisource/jobkeeper/pkg/logging"
)

const hardMaxMisfireSkip = 1000

// Config configures an Engine (spec §6).
type Config struct {
	ID     string
	Clock  clock.Clock
	Logger logging.Logger
	Store  Store
	Leader LeaderGate // optional; nil means this process always scans

	PollInterval        time.Duration
	LeaseDuration       time.Duration
	HeartbeatInterval   time.Duration
	StalledAfter        time.Duration
	MisfireTolerance    time.Duration
	MaxMisfireSkip      int
	MaxConcurrentRuns   int
	GlobalRateLimit     *RateLimitConfig
}

func (c *Config) setDefaults() {
	if c.ID == "" {
		c.ID = newSchedulerID()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.StalledAfter <= 0 {
		c.StalledAfter = 90 * time.Second
	}
	if c.MisfireTolerance <= 0 {
		c.MisfireTolerance = 60 * time.Second
	}
	if c.MaxMisfireSkip <= 0 || c.MaxMisfireSkip > hardMaxMisfireSkip {
		c.MaxMisfireSkip = hardMaxMisfireSkip
	}
}

// stalledMonitorPeriod implements the clamp in spec §4.9.7.
func (c *Config) stalledMonitorPeriod() time.Duration {
	p := c.HeartbeatInterval
	if half := c.StalledAfter / 2; half < p {
		p = half
	}
	if p < 250*time.Millisecond {
		p = 250 * time.Millisecond
	}
	return p
}
