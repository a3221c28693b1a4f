package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sysdbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// Numeric codes the systemd sampler reports.
const (
	serviceActive   = 0
	serviceInactive = 1
	serviceFailed   = 2
)

// systemdSampler maps a service's ActiveState to a numeric code: active
// is 0, inactive 1, failed 2. A probe error or an unexpected state counts
// as inactive: a service we cannot see is assumed stopped, never fatal.
type systemdSampler struct {
	unit   string
	title  string
	state  func(ctx context.Context, unit string) (string, error)
	warned bool
	log    *slog.Logger
}

func newSystemdSampler(service string, conn *sysdbus.Conn, title string, logger *slog.Logger) *systemdSampler {
	unit := service
	if !strings.HasSuffix(unit, ".service") {
		unit += ".service"
	}
	return &systemdSampler{
		unit:  unit,
		title: title,
		state: func(ctx context.Context, unit string) (string, error) {
			prop, err := conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
			if err != nil {
				return "", err
			}
			state, ok := prop.Value.Value().(string)
			if !ok {
				return "", fmt.Errorf("unexpected ActiveState type %T", prop.Value.Value())
			}
			return state, nil
		},
		log: logger.With("monitor", title),
	}
}

func (s *systemdSampler) Produce(ctx context.Context) float64 {
	state, err := s.state(ctx, s.unit)
	if err != nil {
		if !s.warned {
			s.log.Warn("service state unavailable, assuming stopped", "unit", s.unit, "error", err)
			s.warned = true
		} else {
			s.log.Debug("service state unavailable", "unit", s.unit, "error", err)
		}
		telemetry.IncSamplerError(s.title)
		return serviceInactive
	}
	s.warned = false
	switch state {
	case "active":
		return serviceActive
	case "inactive":
		return serviceInactive
	case "failed":
		return serviceFailed
	default:
		// Transient states like "activating" count as stopped.
		s.log.Debug("unexpected service state, assuming stopped", "unit", s.unit, "state", state)
		return serviceInactive
	}
}

func (s *systemdSampler) Unit() string { return "status" }
