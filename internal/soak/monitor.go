package soak

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// MonitorConfig tunes a soak run.
type MonitorConfig struct {
	// MetricsPath is the JSONL telemetry file to tail.
	MetricsPath string

	// PollInterval is how often the file is re-read. Default 1s.
	PollInterval time.Duration

	// StatusEvery is how often a summary line is logged. Default 30s.
	StatusEvery time.Duration

	// IncludeExisting counts events already in the file at start. The
	// default skips them so restarts judge only fresh traffic.
	IncludeExisting bool

	Thresholds Thresholds
}

func (c *MonitorConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StatusEvery <= 0 {
		c.StatusEvery = 30 * time.Second
	}
}

// Monitor tails the telemetry log until its context ends, then evaluates
// the thresholds.
type Monitor struct {
	cfg      MonitorConfig
	counters Counters
	offset   int64
}

// NewMonitor creates a monitor. When IncludeExisting is false, events
// already in the file are skipped.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	cfg.applyDefaults()
	m := &Monitor{cfg: cfg}
	if !cfg.IncludeExisting {
		if info, err := os.Stat(cfg.MetricsPath); err == nil {
			m.offset = info.Size()
		}
	}
	return m, nil
}

// Run polls the telemetry log until ctx is cancelled, then returns the
// final verdict: one message per violated threshold.
func (m *Monitor) Run(ctx context.Context) []string {
	slog.Info("soak monitor started",
		"metrics", m.cfg.MetricsPath,
		"poll", m.cfg.PollInterval,
		"include_existing", m.cfg.IncludeExisting)

	poll := time.NewTicker(m.cfg.PollInterval)
	defer poll.Stop()
	status := time.NewTicker(m.cfg.StatusEvery)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			m.poll()
			return Evaluate(&m.counters, m.cfg.Thresholds)
		case <-poll.C:
			m.poll()
		case <-status.C:
			slog.Info("soak status", "summary", Summary(&m.counters))
		}
	}
}

// Counters returns the accumulated counters.
func (m *Monitor) Counters() *Counters { return &m.counters }

func (m *Monitor) poll() {
	offset, err := m.counters.Tail(m.cfg.MetricsPath, m.offset)
	if err != nil {
		slog.Warn("telemetry poll failed", "error", err)
		return
	}
	m.offset = offset
}
