package monitor

import (
	"context"
	"log/slog"

	"github.com/shirou/gopsutil/v4/load"

	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// loadSampler reports the 1, 5 or 15 minute load average, selected by
// index 0, 1 or 2.
type loadSampler struct {
	index  int
	title  string
	warned bool
	log    *slog.Logger
}

func newLoadSampler(index int, title string, logger *slog.Logger) *loadSampler {
	return &loadSampler{index: index, title: title, log: logger.With("monitor", title)}
}

func (s *loadSampler) Produce(ctx context.Context) float64 {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		if !s.warned {
			s.log.Warn("load average unavailable", "error", err)
			s.warned = true
		}
		telemetry.IncSamplerError(s.title)
		return 0
	}
	s.warned = false
	switch s.index {
	case 0:
		return avg.Load1
	case 1:
		return avg.Load5
	default:
		return avg.Load15
	}
}

func (s *loadSampler) Unit() string { return "load" }
