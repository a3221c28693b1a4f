package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sysdbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/google/uuid"

	"github.com/Dacada/simple-monitor/internal/config"
	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// BroadcastFunc receives fresh snapshots after every tick, in monitor
// order. Used to push live updates to websocket clients.
type BroadcastFunc func(statuses []Status)

// Registry owns the monitor set and drives sampling on a shared cadence.
// Monitors are added before Run and never change afterwards; iteration
// order is insertion order, which keeps output deterministic.
type Registry struct {
	monitors []*Monitor
	byID     map[uuid.UUID]*Monitor
	interval time.Duration

	mu        sync.Mutex
	broadcast BroadcastFunc

	log *slog.Logger
}

// NewRegistry creates an empty registry ticking at the given interval.
func NewRegistry(interval time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byID:     make(map[uuid.UUID]*Monitor),
		interval: interval,
		log:      logger,
	}
}

// Add appends a monitor. Call before Run.
func (r *Registry) Add(m *Monitor) {
	r.monitors = append(r.monitors, m)
	r.byID[m.ID()] = m
}

// SetBroadcast installs the snapshot push callback. Call before Run.
func (r *Registry) SetBroadcast(fn BroadcastFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = fn
}

func (r *Registry) broadcastFn() BroadcastFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcast
}

// TickAll samples every monitor once, in order, with a shared timestamp.
func (r *Registry) TickAll(ctx context.Context, now time.Time) {
	for _, m := range r.monitors {
		m.Tick(ctx, now)
	}
}

// Status returns the latest snapshot of every monitor, keyed by identity.
func (r *Registry) Status() map[uuid.UUID]Status {
	out := make(map[uuid.UUID]Status, len(r.monitors))
	for _, m := range r.monitors {
		out[m.ID()] = m.Status()
	}
	return out
}

// StatusList returns the latest snapshots in configuration order.
func (r *Registry) StatusList() []Status {
	out := make([]Status, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m.Status())
	}
	return out
}

// ActiveAlarmCount reports how many monitors are alarmed right now. Safe
// from any goroutine; used by the self-metrics gauge.
func (r *Registry) ActiveAlarmCount() float64 {
	var n float64
	for _, m := range r.monitors {
		if m.Status().ActiveAlarm != nil {
			n++
		}
	}
	return n
}

// Run drives the sample loop: one immediate tick, then one per interval,
// until ctx is cancelled. A panic escaping a tick means a monitor can no
// longer be trusted to sample; it is logged and stop is called so the
// whole agent shuts down rather than limping on with a dead loop.
func (r *Registry) Run(ctx context.Context, stop context.CancelFunc) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("unhandled panic in sample loop", "panic", p)
			stop()
		}
	}()

	r.log.Info("sample loop started", "monitors", len(r.monitors), "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("sample loop stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Registry) tick(ctx context.Context) {
	start := time.Now()
	r.TickAll(ctx, start)
	telemetry.ObserveTick(time.Since(start))
	if fn := r.broadcastFn(); fn != nil {
		fn(r.StatusList())
	}
}

// BuildRegistry constructs the monitor set from validated configuration.
// The probe pool and the systemd bus handle are shared resources owned by
// the caller; samplers that need them receive them explicitly.
func BuildRegistry(cfg *config.Config, pool *ProbePool, sysconn *sysdbus.Conn, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(time.Duration(cfg.Granularity)*time.Second, logger)
	for i, mc := range cfg.Monitors {
		var s Sampler
		switch mc.Kind {
		case config.MonitorLoadAverage:
			s = newLoadSampler(mc.Index, mc.Title, logger)
		case config.MonitorDiskUsage:
			s = newDiskUsageSampler(mc.Mountpoint, mc.Which, mc.UnitBase, mc.UnitExponent, mc.Title, logger)
		case config.MonitorDiskWriteRate:
			s = newDiskWriteRateSampler(mc.Disk, mc.UnitBase, mc.UnitExponent, mc.Title, logger)
		case config.MonitorTemperature:
			s = newTemperatureSampler(mc.Sensor, mc.Index, mc.Title, logger)
		case config.MonitorUptime:
			s = newUptimeSampler(mc.Title, logger)
		case config.MonitorSystemd:
			if sysconn == nil {
				return nil, fmt.Errorf("monitor %d (%s): systemd bus unavailable", i, mc.Title)
			}
			s = newSystemdSampler(mc.Service, sysconn, mc.Title, logger)
		case config.MonitorPing:
			s = newPingSampler(mc.Host, pool, mc.Title, logger)
		case config.MonitorPackages:
			s = newPackageSampler(mc.Manager, time.Duration(mc.Delay), pool, mc.Title, logger)
		default:
			return nil, fmt.Errorf("monitor %d (%s): unknown kind %q", i, mc.Title, mc.Kind)
		}
		reg.Add(New(string(mc.Kind), mc.Title, s, buildRules(mc.Alarms), logger))
	}
	return reg, nil
}

func buildRules(alarms []config.AlarmConfig) []Rule {
	rules := make([]Rule, 0, len(alarms))
	for _, a := range alarms {
		rules = append(rules, Rule{
			Name:       a.Name,
			Exceedance: Exceedance(a.Exceedance),
			Value:      a.Value,
			Count:      a.Count,
			Reminder:   time.Duration(a.Reminder),
		})
	}
	return rules
}
