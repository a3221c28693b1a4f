package monitor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/Dacada/simple-monitor/internal/telemetry"
)

// temperatureSampler reads the nth value of a named temperature sensor.
// Sensor keys vary between platforms and kernels, so a reading matches
// when its key equals the configured name or merely starts with it.
type temperatureSampler struct {
	sensor string
	index  int
	title  string
	warned bool
	log    *slog.Logger
}

func newTemperatureSampler(sensor string, index int, title string, logger *slog.Logger) *temperatureSampler {
	return &temperatureSampler{sensor: sensor, index: index, title: title, log: logger.With("monitor", title)}
}

func (s *temperatureSampler) Produce(ctx context.Context) float64 {
	if s.warned {
		telemetry.IncSamplerError(s.title)
		return 0
	}
	stats, err := sensors.TemperaturesWithContext(ctx)
	if err != nil && len(stats) == 0 {
		s.degrade("temperature sensors unavailable, will always measure zero", "error", err)
		return 0
	}
	var readings []float64
	for _, st := range stats {
		if st.SensorKey == s.sensor || strings.HasPrefix(st.SensorKey, s.sensor) {
			readings = append(readings, st.Temperature)
		}
	}
	if len(readings) == 0 {
		s.degrade("sensor not found, will always measure zero", "sensor", s.sensor)
		return 0
	}
	if s.index >= len(readings) {
		s.degrade("sensor has fewer readings than requested, will always measure zero",
			"sensor", s.sensor, "readings", len(readings), "index", s.index)
		return 0
	}
	return readings[s.index]
}

func (s *temperatureSampler) degrade(msg string, args ...any) {
	s.log.Warn(msg, args...)
	s.warned = true
	telemetry.IncSamplerError(s.title)
}

func (s *temperatureSampler) Unit() string { return "ºC" }
