// Package notify delivers alarm lifecycle notifications. Each configured
// channel (email, webhook, NATS, journal) implements Notifier; delivery
// failures are logged by the channel itself and never propagate, so a
// broken channel cannot stall or crash the alarm loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Dacada/simple-monitor/internal/config"
	"github.com/Dacada/simple-monitor/internal/monitor"
	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// Event describes one alarm lifecycle transition with everything a
// channel needs to format a message.
type Event struct {
	Node      string       `json:"node"`
	MonitorID uuid.UUID    `json:"monitor_id"`
	Monitor   string       `json:"monitor"`
	Title     string       `json:"title"`
	Unit      string       `json:"unit"`
	Rule      monitor.Rule `json:"rule"`
	Time      time.Time    `json:"time"`
}

// Notifier receives alarm lifecycle events.
type Notifier interface {
	AlarmStarted(ctx context.Context, e Event)
	AlarmEnded(ctx context.Context, e Event)
	AlarmChanged(ctx context.Context, prev, next Event)
	AlarmReminder(ctx context.Context, e Event)
}

// Lifecycle event labels, used on the wire and in metrics.
const (
	EventStarted  = "started"
	EventEnded    = "ended"
	EventChanged  = "changed"
	EventReminder = "reminder"
)

// eventPayload is the JSON document published by the webhook and NATS
// channels. The embedded Event flattens into the top level.
type eventPayload struct {
	Kind string `json:"event"`
	Event
	Previous *Event `json:"previous,omitempty"`
}

// Build constructs the notifier for one configured channel. The returned
// close function releases the channel's resources; it is a no-op for
// stateless channels.
func Build(nc config.NotifierConfig, logger *slog.Logger) (Notifier, func() error, error) {
	noop := func() error { return nil }
	switch nc.Kind {
	case config.NotifierEmail:
		e := NewEmail(nc.Sender, nc.Receiver, nc.Server, nc.Port, nc.Password, logger)
		return instrumented{string(nc.Kind), e}, noop, nil
	case config.NotifierWebhook:
		w := NewWebhook(nc.URL, logger)
		return instrumented{string(nc.Kind), w}, noop, nil
	case config.NotifierNATS:
		n, err := NewNATS(nc.NATSURL, nc.Subject, logger)
		if err != nil {
			return nil, nil, err
		}
		return instrumented{string(nc.Kind), n}, n.Close, nil
	case config.NotifierJournal:
		j, err := NewJournal(nc.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return instrumented{string(nc.Kind), j}, j.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier kind %q", nc.Kind)
	}
}

// instrumented wraps a channel so every lifecycle event it handles shows
// up in the self-metrics.
type instrumented struct {
	channel string
	inner   Notifier
}

func (i instrumented) AlarmStarted(ctx context.Context, e Event) {
	telemetry.IncNotification(i.channel, EventStarted)
	i.inner.AlarmStarted(ctx, e)
}

func (i instrumented) AlarmEnded(ctx context.Context, e Event) {
	telemetry.IncNotification(i.channel, EventEnded)
	i.inner.AlarmEnded(ctx, e)
}

func (i instrumented) AlarmChanged(ctx context.Context, prev, next Event) {
	telemetry.IncNotification(i.channel, EventChanged)
	i.inner.AlarmChanged(ctx, prev, next)
}

func (i instrumented) AlarmReminder(ctx context.Context, e Event) {
	telemetry.IncNotification(i.channel, EventReminder)
	i.inner.AlarmReminder(ctx, e)
}
