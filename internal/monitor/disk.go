package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/Dacada/simple-monitor/internal/config"
	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// makeUnit builds the display unit for a byte quantity scaled by
// base^exponent: "KB", "MiB", "GB" and so on. The "i" infix marks binary
// (1024) scaling.
func makeUnit(base, exponent int) string {
	suffix := [...]string{"", "K", "M", "G", "T", "P"}[exponent]
	infix := ""
	if base == 1024 && suffix != "" {
		infix = "i"
	}
	return suffix + infix + "B"
}

// diskUsageSampler reports one figure of a mount point's usage: total,
// used or free space scaled to the configured unit, or the raw used
// percentage.
type diskUsageSampler struct {
	mountpoint string
	which      config.DiskUsageWhich
	divider    float64
	unit       string
	title      string
	warned     bool
	log        *slog.Logger
}

func newDiskUsageSampler(mountpoint string, which config.DiskUsageWhich, base, exponent int, title string, logger *slog.Logger) *diskUsageSampler {
	return &diskUsageSampler{
		mountpoint: mountpoint,
		which:      which,
		divider:    math.Pow(float64(base), float64(exponent)),
		unit:       makeUnit(base, exponent),
		title:      title,
		log:        logger.With("monitor", title),
	}
}

func (s *diskUsageSampler) Produce(ctx context.Context) float64 {
	usage, err := disk.UsageWithContext(ctx, s.mountpoint)
	if err != nil {
		if !s.warned {
			s.log.Warn("disk usage unavailable", "mountpoint", s.mountpoint, "error", err)
			s.warned = true
		}
		telemetry.IncSamplerError(s.title)
		return 0
	}
	s.warned = false
	switch s.which {
	case config.DiskTotal:
		return float64(usage.Total) / s.divider
	case config.DiskUsed:
		return float64(usage.Used) / s.divider
	case config.DiskFree:
		return float64(usage.Free) / s.divider
	default:
		return usage.UsedPercent
	}
}

func (s *diskUsageSampler) Unit() string {
	if s.which == config.DiskPercent {
		return "%"
	}
	return s.unit
}

// diskWriteRateSampler derives bytes written per second from the delta of
// a device's write counter between ticks.
type diskWriteRateSampler struct {
	device  string
	divider float64
	unit    string
	title   string

	// Injection points for tests.
	readCounter func(ctx context.Context) (uint64, error)
	now         func() time.Time

	last   *counterReading
	warned bool
	log    *slog.Logger
}

type counterReading struct {
	at    time.Time
	value uint64
}

func newDiskWriteRateSampler(device string, base, exponent int, title string, logger *slog.Logger) *diskWriteRateSampler {
	s := &diskWriteRateSampler{
		device:  device,
		divider: math.Pow(float64(base), float64(exponent)),
		unit:    makeUnit(base, exponent) + "/second",
		title:   title,
		now:     time.Now,
		log:     logger.With("monitor", title),
	}
	s.readCounter = func(ctx context.Context) (uint64, error) {
		counters, err := disk.IOCountersWithContext(ctx, device)
		if err != nil {
			return 0, err
		}
		io, ok := counters[device]
		if !ok {
			return 0, fmt.Errorf("no I/O counters for device %q", device)
		}
		return io.WriteBytes, nil
	}
	return s
}

// Produce returns 0 on the first call: it only records the baseline
// counter. When counters turn out to be unavailable it warns once and
// measures zero from then on.
func (s *diskWriteRateSampler) Produce(ctx context.Context) float64 {
	if s.warned {
		telemetry.IncSamplerError(s.title)
		return 0
	}
	value, err := s.readCounter(ctx)
	if err != nil {
		s.log.Warn("I/O counters unavailable, will always measure zero", "device", s.device, "error", err)
		s.warned = true
		telemetry.IncSamplerError(s.title)
		return 0
	}
	now := s.now()
	prev := s.last
	s.last = &counterReading{at: now, value: value}
	if prev == nil {
		return 0
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return (float64(value) - float64(prev.value)) / elapsed / s.divider
}

func (s *diskWriteRateSampler) Unit() string { return s.unit }
