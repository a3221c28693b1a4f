// Package monitor implements the sampling core: each Monitor polls one
// metric source on a shared cadence, keeps a bounded rolling history of
// datapoints and derives at most one active alarm from its threshold
// rules.
package monitor

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// maxDatapoints caps each monitor's rolling history. Once full, every new
// datapoint evicts the oldest.
const maxDatapoints = 100

// Point is one sampled datapoint.
type Point struct {
	X time.Time `json:"x"`
	Y float64   `json:"y"`
}

// Exceedance is the direction a value crosses a threshold to fire a rule.
type Exceedance string

const (
	Over  Exceedance = "over"
	Under Exceedance = "under"
)

// Rule is a threshold alarm rule: it fires when the last Count datapoints
// are all strictly beyond Value in the rule's direction. Reminder, when
// non-zero, is the interval between repeat notifications while the alarm
// stays active.
type Rule struct {
	Name       string        `json:"name"`
	Exceedance Exceedance    `json:"exceedance"`
	Value      float64       `json:"value"`
	Count      int           `json:"count"`
	Reminder   time.Duration `json:"reminder,omitempty"`
}

// Status is an immutable point-in-time snapshot of a monitor. It shares
// no mutable state with the live monitor, so readers may hold it for as
// long as they like.
type Status struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Unit        string    `json:"unit"`
	Alarms      []Rule    `json:"alarms"`
	Values      []Point   `json:"values"`
	ActiveAlarm *Rule     `json:"active_alarm"`
}

// Sampler produces one numeric datapoint per tick for a metric source.
// Produce must return promptly: samplers backed by slow probes hand the
// work to the probe pool and report their last cached value instead.
type Sampler interface {
	Produce(ctx context.Context) float64
	Unit() string
}

// Monitor wraps a Sampler with a rolling history and an alarm policy.
// All mutable state is owned by the sample loop; everyone else reads the
// atomically published Status.
type Monitor struct {
	id    uuid.UUID
	name  string
	title string

	sampler Sampler
	alarms  []Rule // as configured, for snapshots
	over    []Rule // highest threshold first
	under   []Rule // lowest threshold first

	points []Point
	active *Rule
	status atomic.Pointer[Status]

	log *slog.Logger
}

// New creates a monitor around sampler. Rules are split by direction and
// ordered by severity, so that when several fire at once the worst breach
// wins: the highest OVER threshold, then the lowest UNDER threshold.
func New(name, title string, sampler Sampler, rules []Rule, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		id:      uuid.New(),
		name:    name,
		title:   title,
		sampler: sampler,
		alarms:  make([]Rule, len(rules)),
		log:     logger.With("monitor", title),
	}
	copy(m.alarms, rules)
	for _, r := range rules {
		switch r.Exceedance {
		case Over:
			m.over = append(m.over, r)
		case Under:
			m.under = append(m.under, r)
		}
	}
	slices.SortStableFunc(m.over, func(a, b Rule) int { return cmp.Compare(b.Value, a.Value) })
	slices.SortStableFunc(m.under, func(a, b Rule) int { return cmp.Compare(a.Value, b.Value) })
	m.publish()
	return m
}

// ID returns the monitor's stable identity for this process.
func (m *Monitor) ID() uuid.UUID { return m.id }

// Title returns the configured display name.
func (m *Monitor) Title() string { return m.title }

// Tick samples one datapoint, updates the rolling history, re-evaluates
// the alarm verdict and publishes a fresh snapshot. Only the sample loop
// may call it.
func (m *Monitor) Tick(ctx context.Context, now time.Time) {
	v := m.sampler.Produce(ctx)
	m.points = append(m.points, Point{X: now, Y: v})
	if len(m.points) > maxDatapoints {
		m.points = slices.Delete(m.points, 0, len(m.points)-maxDatapoints)
	}
	m.evaluate()
	m.publish()
}

// evaluate derives the active alarm: OVER rules are scanned from the
// highest threshold down, then UNDER rules from the lowest up. The first
// rule that fires wins.
func (m *Monitor) evaluate() {
	var active *Rule
	for i := range m.over {
		if m.fires(m.over[i]) {
			active = &m.over[i]
			break
		}
	}
	if active == nil {
		for i := range m.under {
			if m.fires(m.under[i]) {
				active = &m.under[i]
				break
			}
		}
	}
	if !sameRule(active, m.active) {
		m.log.Info("alarm verdict changed",
			"previous", ruleName(m.active),
			"current", ruleName(active))
	}
	m.active = active
}

// fires reports whether the last rule.Count datapoints all lie strictly
// beyond the threshold. A history shorter than the required count never
// fires: too little data is a skip, not an alarm.
func (m *Monitor) fires(r Rule) bool {
	if len(m.points) < r.Count {
		m.log.Debug("not enough data to evaluate alarm",
			"alarm", r.Name, "need", r.Count, "have", len(m.points))
		return false
	}
	for _, p := range m.points[len(m.points)-r.Count:] {
		switch r.Exceedance {
		case Over:
			if p.Y <= r.Value {
				return false
			}
		case Under:
			if p.Y >= r.Value {
				return false
			}
		}
	}
	return true
}

// publish stores a self-contained snapshot for readers. History is copied
// and the active rule cloned so later ticks cannot mutate what a reader
// already holds.
func (m *Monitor) publish() {
	st := &Status{
		ID:     m.id,
		Name:   m.name,
		Title:  m.title,
		Unit:   m.sampler.Unit(),
		Alarms: m.alarms,
		Values: make([]Point, len(m.points)),
	}
	copy(st.Values, m.points)
	if m.active != nil {
		r := *m.active
		st.ActiveAlarm = &r
	}
	m.status.Store(st)
}

// Status returns the most recently published snapshot.
func (m *Monitor) Status() Status { return *m.status.Load() }

func sameRule(a, b *Rule) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ruleName(r *Rule) string {
	if r == nil {
		return "none"
	}
	return r.Name
}
