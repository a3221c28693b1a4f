package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/Dacada/simple-monitor/internal/telemetry"
)

const pingTimeout = 5 * time.Second

// pingSampler reports the last completed echo round-trip time in
// milliseconds, or -1000 while the host is unreachable or no probe has
// finished yet. At most one probe is in flight at a time and Produce
// never waits for it: ticks keep their cadence no matter how slow the
// network is.
type pingSampler struct {
	host  string
	title string
	pool  submitter
	probe func(ctx context.Context, host string) (time.Duration, error)

	mu       sync.Mutex
	inflight bool
	lastRTT  float64 // seconds, -1 when unreachable
	warned   bool

	log *slog.Logger
}

func newPingSampler(host string, pool submitter, title string, logger *slog.Logger) *pingSampler {
	return &pingSampler{
		host:    host,
		title:   title,
		pool:    pool,
		probe:   runPing,
		lastRTT: -1,
		log:     logger.With("monitor", title),
	}
}

// runPing sends a single echo request and returns its round-trip time.
func runPing(ctx context.Context, host string) (time.Duration, error) {
	p, err := probing.NewPinger(host)
	if err != nil {
		return 0, err
	}
	p.Count = 1
	p.Timeout = pingTimeout
	p.SetPrivileged(true)
	if err := p.RunWithContext(ctx); err != nil {
		return 0, err
	}
	stats := p.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, errors.New("no echo reply")
	}
	return stats.AvgRtt, nil
}

func (s *pingSampler) Produce(ctx context.Context) float64 {
	s.startProbe()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRTT * 1000
}

// startProbe submits an echo probe unless one is already in flight.
func (s *pingSampler) startProbe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight {
		return
	}
	s.inflight = true
	ok := s.pool.Submit(func(ctx context.Context) {
		rtt, err := s.probe(ctx, s.host)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			if !s.warned {
				s.log.Warn("host unreachable", "host", s.host, "error", err)
				s.warned = true
			} else {
				s.log.Debug("host unreachable", "host", s.host, "error", err)
			}
			telemetry.IncSamplerError(s.title)
			s.lastRTT = -1
		} else {
			s.warned = false
			s.lastRTT = rtt.Seconds()
		}
		s.inflight = false
	})
	if !ok {
		s.inflight = false
	}
}

func (s *pingSampler) Unit() string { return "miliseconds" }
