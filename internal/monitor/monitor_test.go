package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

// stubSampler returns whatever the test last planted in next.
type stubSampler struct {
	next float64
	unit string
}

func (s *stubSampler) Produce(context.Context) float64 { return s.next }

func (s *stubSampler) Unit() string {
	if s.unit == "" {
		return "x"
	}
	return s.unit
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tick(m *Monitor, s *stubSampler, v float64) {
	s.next = v
	m.Tick(context.Background(), time.Now())
}

func activeName(t *testing.T, m *Monitor) string {
	t.Helper()
	st := m.Status()
	if st.ActiveAlarm == nil {
		return ""
	}
	return st.ActiveAlarm.Name
}

func TestNoAlarmWithInsufficientData(t *testing.T) {
	s := &stubSampler{}
	m := New("load_average", "Load", s, []Rule{
		{Name: "high", Exceedance: Over, Value: 80, Count: 3},
	}, discardLogger())

	tick(m, s, 81)
	tick(m, s, 81)
	if got := activeName(t, m); got != "" {
		t.Fatalf("alarm %q fired with only 2 of 3 required datapoints", got)
	}
	tick(m, s, 81)
	if got := activeName(t, m); got != "high" {
		t.Fatalf("active alarm = %q, want high", got)
	}
}

func TestHighestOverRuleWins(t *testing.T) {
	s := &stubSampler{}
	m := New("load_average", "Load", s, []Rule{
		{Name: "warning", Exceedance: Over, Value: 80, Count: 1},
		{Name: "critical", Exceedance: Over, Value: 90, Count: 1},
	}, discardLogger())

	tick(m, s, 95)
	if got := activeName(t, m); got != "critical" {
		t.Fatalf("active alarm = %q, want critical", got)
	}
	tick(m, s, 85)
	if got := activeName(t, m); got != "warning" {
		t.Fatalf("active alarm = %q, want warning", got)
	}
}

func TestLowestUnderRuleWins(t *testing.T) {
	s := &stubSampler{}
	m := New("disk_usage", "Disk", s, []Rule{
		{Name: "low", Exceedance: Under, Value: 20, Count: 1},
		{Name: "empty", Exceedance: Under, Value: 10, Count: 1},
	}, discardLogger())

	tick(m, s, 5)
	if got := activeName(t, m); got != "empty" {
		t.Fatalf("active alarm = %q, want empty", got)
	}
	tick(m, s, 15)
	if got := activeName(t, m); got != "low" {
		t.Fatalf("active alarm = %q, want low", got)
	}
}

func TestOverRulesBeatUnderRules(t *testing.T) {
	s := &stubSampler{}
	m := New("temperature", "Temp", s, []Rule{
		{Name: "too cold", Exceedance: Under, Value: 200, Count: 1},
		{Name: "too hot", Exceedance: Over, Value: 100, Count: 1},
	}, discardLogger())

	// 150 satisfies both rules; the OVER group is checked first.
	tick(m, s, 150)
	if got := activeName(t, m); got != "too hot" {
		t.Fatalf("active alarm = %q, want too hot", got)
	}
}

func TestStrictInequalityAtThreshold(t *testing.T) {
	s := &stubSampler{}
	m := New("load_average", "Load", s, []Rule{
		{Name: "over", Exceedance: Over, Value: 80, Count: 1},
		{Name: "under", Exceedance: Under, Value: 80, Count: 1},
	}, discardLogger())

	tick(m, s, 80)
	if got := activeName(t, m); got != "" {
		t.Fatalf("alarm %q fired on a value exactly at the threshold", got)
	}
}

func TestThresholdEdges(t *testing.T) {
	s := &stubSampler{}
	m := New("load_average", "Load", s, []Rule{
		{Name: "high", Exceedance: Over, Value: 80, Count: 1},
	}, discardLogger())

	tick(m, s, 80.1)
	if got := activeName(t, m); got != "high" {
		t.Fatalf("active alarm = %q after 80.1, want high", got)
	}
	tick(m, s, 79.9)
	if got := activeName(t, m); got != "" {
		t.Fatalf("alarm %q still active after 79.9", got)
	}
}

func TestConsecutiveCount(t *testing.T) {
	s := &stubSampler{}
	m := New("load_average", "Load", s, []Rule{
		{Name: "high", Exceedance: Over, Value: 80, Count: 2},
	}, discardLogger())

	tick(m, s, 81)
	if got := activeName(t, m); got != "" {
		t.Fatalf("alarm %q fired after a single breach", got)
	}
	tick(m, s, 82)
	if got := activeName(t, m); got != "high" {
		t.Fatalf("active alarm = %q after two breaches, want high", got)
	}
	tick(m, s, 79)
	if got := activeName(t, m); got != "" {
		t.Fatalf("alarm %q survived a value back inside the threshold", got)
	}
}

func TestHistoryCap(t *testing.T) {
	s := &stubSampler{}
	m := New("uptime", "Uptime", s, nil, discardLogger())

	for i := 0; i < maxDatapoints+5; i++ {
		tick(m, s, float64(i))
	}

	st := m.Status()
	if len(st.Values) != maxDatapoints {
		t.Fatalf("history holds %d datapoints, want %d", len(st.Values), maxDatapoints)
	}
	if st.Values[0].Y != 5 {
		t.Errorf("oldest datapoint = %v, want 5 (oldest five evicted)", st.Values[0].Y)
	}
	if st.Values[len(st.Values)-1].Y != float64(maxDatapoints+4) {
		t.Errorf("newest datapoint = %v, want %d", st.Values[len(st.Values)-1].Y, maxDatapoints+4)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := &stubSampler{}
	m := New("uptime", "Uptime", s, nil, discardLogger())

	tick(m, s, 1)
	old := m.Status()

	tick(m, s, 2)
	if len(old.Values) != 1 {
		t.Fatalf("earlier snapshot grew to %d values after a new tick", len(old.Values))
	}

	old.Values[0].Y = 999
	if got := m.Status().Values[0].Y; got != 1 {
		t.Fatalf("mutating a held snapshot leaked into the monitor: value = %v", got)
	}
}

func TestStatusShape(t *testing.T) {
	s := &stubSampler{unit: "load"}
	rules := []Rule{
		{Name: "b", Exceedance: Over, Value: 1, Count: 1},
		{Name: "a", Exceedance: Over, Value: 2, Count: 1},
	}
	m := New("load_average", "Load Average", s, rules, discardLogger())

	st := m.Status()
	if st.ID != m.ID() {
		t.Errorf("snapshot ID %v does not match monitor ID %v", st.ID, m.ID())
	}
	if st.Name != "load_average" || st.Title != "Load Average" || st.Unit != "load" {
		t.Errorf("snapshot identity fields wrong: %+v", st)
	}
	if st.Values == nil || len(st.Values) != 0 {
		t.Errorf("fresh snapshot values = %#v, want empty non-nil slice", st.Values)
	}
	if st.ActiveAlarm != nil {
		t.Errorf("fresh snapshot has active alarm %v", st.ActiveAlarm)
	}
	// Rules are reported in configuration order, not evaluation order.
	if len(st.Alarms) != 2 || st.Alarms[0].Name != "b" || st.Alarms[1].Name != "a" {
		t.Errorf("snapshot alarms out of order: %+v", st.Alarms)
	}
}
