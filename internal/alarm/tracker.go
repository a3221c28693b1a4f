// Package alarm turns per-monitor verdicts into lifecycle notifications.
// The monitors themselves only know "alarmed or not, right now"; the
// tracker remembers what it last reported and emits started, changed,
// ended and reminder events on the transitions.
package alarm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Dacada/simple-monitor/internal/monitor"
	"github.com/Dacada/simple-monitor/internal/notify"
)

// trackedAlarm is the tracker's memory of one alarmed monitor: the
// stripped snapshot it last notified about and when.
type trackedAlarm struct {
	status       monitor.Status
	lastNotified time.Time
}

// Tracker diffs successive snapshot sets against its remembered state and
// drives one notification channel through alarm lifecycle transitions.
// Each channel gets its own tracker, so channels never share state. Not
// safe for concurrent use; the alarm loop is its only caller.
type Tracker struct {
	node     string
	notifier notify.Notifier
	current  map[uuid.UUID]*trackedAlarm
	log      *slog.Logger
}

// NewTracker creates a tracker reporting as node through notifier.
func NewTracker(node string, notifier notify.Notifier, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		node:     node,
		notifier: notifier,
		current:  make(map[uuid.UUID]*trackedAlarm),
		log:      logger,
	}
}

// Evaluate runs one tracking pass over the given snapshots. Transitions
// are handled in a fixed order: ended, changed, started, then reminders.
// A monitor can therefore never receive two conflicting events in one
// pass, and a rule change resets its reminder clock.
func (t *Tracker) Evaluate(ctx context.Context, now time.Time, statuses map[uuid.UUID]monitor.Status) {
	alarmed := make(map[uuid.UUID]monitor.Status, len(statuses))
	for id, st := range statuses {
		if st.ActiveAlarm != nil {
			alarmed[id] = stripped(st)
		}
	}

	// Tracked alarms that are no longer active.
	for id, known := range t.current {
		if _, ok := alarmed[id]; !ok {
			t.log.Info("alarm ended", "monitor", known.status.Title, "alarm", ruleName(known.status.ActiveAlarm))
			t.notifier.AlarmEnded(ctx, t.event(known.status, now))
			delete(t.current, id)
		}
	}

	// Tracked alarms whose active rule changed.
	for id, st := range alarmed {
		known, ok := t.current[id]
		if !ok {
			continue
		}
		if !sameRule(st.ActiveAlarm, known.status.ActiveAlarm) {
			t.log.Info("alarm changed", "monitor", st.Title,
				"previous", ruleName(known.status.ActiveAlarm), "current", ruleName(st.ActiveAlarm))
			prev := t.event(known.status, known.lastNotified)
			t.current[id] = &trackedAlarm{status: st, lastNotified: now}
			t.notifier.AlarmChanged(ctx, prev, t.event(st, now))
		}
	}

	// Newly alarmed monitors.
	for id, st := range alarmed {
		if _, ok := t.current[id]; ok {
			continue
		}
		t.log.Info("alarm started", "monitor", st.Title, "alarm", ruleName(st.ActiveAlarm))
		t.current[id] = &trackedAlarm{status: st, lastNotified: now}
		t.notifier.AlarmStarted(ctx, t.event(st, now))
	}

	// Reminders for alarms that have stayed active past their interval.
	for _, known := range t.current {
		active := known.status.ActiveAlarm
		if active == nil {
			// Entries only exist for alarmed monitors; reaching this is a bug.
			t.log.Error("tracked monitor has no active alarm", "monitor", known.status.Title)
			continue
		}
		if active.Reminder == 0 {
			continue
		}
		if now.Sub(known.lastNotified) > active.Reminder {
			known.lastNotified = now
			t.log.Info("alarm reminder", "monitor", known.status.Title, "alarm", active.Name)
			t.notifier.AlarmReminder(ctx, t.event(known.status, now))
		}
	}
}

// stripped copies a snapshot without its history or full rule list. The
// tracker only needs identity and the active rule; holding a hundred
// datapoints per tracked alarm would be waste.
func stripped(st monitor.Status) monitor.Status {
	st.Alarms = nil
	st.Values = nil
	return st
}

// sameRule compares by value: snapshots clone the active rule on every
// publish, so pointer identity means nothing here.
func sameRule(a, b *monitor.Rule) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func ruleName(r *monitor.Rule) string {
	if r == nil {
		return "none"
	}
	return r.Name
}

// event assembles the notification payload for a snapshot's active alarm.
func (t *Tracker) event(st monitor.Status, at time.Time) notify.Event {
	e := notify.Event{
		Node:      t.node,
		MonitorID: st.ID,
		Monitor:   st.Name,
		Title:     st.Title,
		Unit:      st.Unit,
		Time:      at,
	}
	if st.ActiveAlarm != nil {
		e.Rule = *st.ActiveAlarm
	}
	return e
}
