package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATS publishes alarm lifecycle events to a subject as JSON, for fleets
// where something downstream aggregates alarms from many nodes.
type NATS struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// NewNATS connects to the server; the connection lives until Close.
func NewNATS(url, subject string, logger *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return &NATS{conn: conn, subject: subject, log: logger}, nil
}

// Close drains buffered messages and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn.Close()
	return err
}

func (n *NATS) AlarmStarted(_ context.Context, e Event) {
	n.publish(eventPayload{Kind: EventStarted, Event: e})
}

func (n *NATS) AlarmEnded(_ context.Context, e Event) {
	n.publish(eventPayload{Kind: EventEnded, Event: e})
}

func (n *NATS) AlarmChanged(_ context.Context, prev, next Event) {
	n.publish(eventPayload{Kind: EventChanged, Event: next, Previous: &prev})
}

func (n *NATS) AlarmReminder(_ context.Context, e Event) {
	n.publish(eventPayload{Kind: EventReminder, Event: e})
}

// publish sends one payload. Failures are logged, never returned.
func (n *NATS) publish(p eventPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		n.log.Error("failed to encode alarm event", "error", err)
		return
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		n.log.Error("nats publish failed", "subject", n.subject, "error", err)
	}
}
