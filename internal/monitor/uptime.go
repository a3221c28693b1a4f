package monitor

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// uptimeSampler reports seconds since boot. Useful with an UNDER rule to
// notice that a host has rebooted.
type uptimeSampler struct {
	title  string
	warned bool
	log    *slog.Logger
}

func newUptimeSampler(title string, logger *slog.Logger) *uptimeSampler {
	return &uptimeSampler{title: title, log: logger.With("monitor", title)}
}

func (s *uptimeSampler) Produce(ctx context.Context) float64 {
	up, err := host.UptimeWithContext(ctx)
	if err != nil {
		if !s.warned {
			s.log.Warn("uptime unavailable", "error", err)
			s.warned = true
		}
		telemetry.IncSamplerError(s.title)
		return 0
	}
	s.warned = false
	return float64(up)
}

func (s *uptimeSampler) Unit() string { return "seconds" }
