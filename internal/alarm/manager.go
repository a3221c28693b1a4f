package alarm

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dacada/simple-monitor/internal/monitor"
)

// Manager owns one tracker per notification channel and evaluates them
// all on a shared cadence, independent of the sample loop's.
type Manager struct {
	registry *monitor.Registry
	trackers []*Tracker
	interval time.Duration
	log      *slog.Logger
}

// NewManager creates a manager evaluating trackers every interval.
func NewManager(registry *monitor.Registry, trackers []*Tracker, interval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		trackers: trackers,
		interval: interval,
		log:      logger,
	}
}

// Run evaluates every tracker once per interval until ctx is cancelled.
// A panic escaping an evaluation is logged and triggers stop, shutting
// the whole agent down rather than leaving alarms silently untracked.
func (m *Manager) Run(ctx context.Context, stop context.CancelFunc) {
	defer func() {
		if p := recover(); p != nil {
			m.log.Error("unhandled panic in alarm loop", "panic", p)
			stop()
		}
	}()

	m.log.Info("alarm loop started", "channels", len(m.trackers), "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.evaluateAll(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("alarm loop stopped")
			return
		case <-ticker.C:
			m.evaluateAll(ctx)
		}
	}
}

func (m *Manager) evaluateAll(ctx context.Context) {
	now := time.Now()
	statuses := m.registry.Status()
	for _, t := range m.trackers {
		t.Evaluate(ctx, now, statuses)
	}
}
