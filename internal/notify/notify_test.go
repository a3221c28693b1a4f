package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Dacada/simple-monitor/internal/config"
	"github.com/Dacada/simple-monitor/internal/monitor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent() Event {
	return Event{
		Node:      "testhost",
		MonitorID: uuid.New(),
		Monitor:   "load_average",
		Title:     "Load Average",
		Unit:      "load",
		Rule: monitor.Rule{
			Name:       "high load",
			Exceedance: monitor.Over,
			Value:      8,
			Count:      3,
			Reminder:   10 * time.Minute,
		},
		Time: time.Now(),
	}
}

func TestWebhookPayload(t *testing.T) {
	type received struct {
		Event    string `json:"event"`
		Node     string `json:"node"`
		Monitor  string `json:"monitor"`
		Title    string `json:"title"`
		Rule     struct {
			Name       string  `json:"name"`
			Exceedance string  `json:"exceedance"`
			Value      float64 `json:"value"`
			Count      int     `json:"count"`
		} `json:"rule"`
		Previous *struct {
			Rule struct {
				Name string `json:"name"`
			} `json:"rule"`
		} `json:"previous"`
	}

	var got received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad payload: %v", err)
		}
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, discardLogger())
	ev := sampleEvent()

	wh.AlarmStarted(context.Background(), ev)
	if got.Event != EventStarted {
		t.Errorf("event = %q, want %q", got.Event, EventStarted)
	}
	if got.Node != "testhost" || got.Monitor != "load_average" || got.Title != "Load Average" {
		t.Errorf("identity fields wrong: %+v", got)
	}
	if got.Rule.Name != "high load" || got.Rule.Exceedance != "over" || got.Rule.Value != 8 || got.Rule.Count != 3 {
		t.Errorf("rule fields wrong: %+v", got.Rule)
	}
	if got.Previous != nil {
		t.Errorf("started event carries a previous rule: %+v", got.Previous)
	}

	prev := ev
	next := ev
	next.Rule.Name = "critical load"
	next.Rule.Value = 16
	wh.AlarmChanged(context.Background(), prev, next)
	if got.Event != EventChanged {
		t.Errorf("event = %q, want %q", got.Event, EventChanged)
	}
	if got.Rule.Name != "critical load" {
		t.Errorf("rule = %q, want the new rule", got.Rule.Name)
	}
	if got.Previous == nil || got.Previous.Rule.Name != "high load" {
		t.Errorf("previous rule missing or wrong: %+v", got.Previous)
	}
}

func TestWebhookSurvivesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, discardLogger())
	// Must not panic or block; failures are logged and swallowed.
	wh.AlarmStarted(context.Background(), sampleEvent())
	wh.AlarmEnded(context.Background(), sampleEvent())

	bad := NewWebhook("http://127.0.0.1:1/unreachable", discardLogger())
	bad.AlarmReminder(context.Background(), sampleEvent())
}

func TestJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.db")
	j, err := NewJournal(path, discardLogger())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	started := sampleEvent()
	j.AlarmStarted(ctx, started)

	ended := started
	ended.Time = started.Time.Add(time.Minute)
	j.AlarmEnded(ctx, ended)

	entries, err := j.Events(ctx, 10)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Event != EventEnded || entries[1].Event != EventStarted {
		t.Errorf("entries out of order: %s, %s", entries[0].Event, entries[1].Event)
	}
	e := entries[1]
	if e.Node != "testhost" || e.Monitor != "load_average" || e.RuleName != "high load" {
		t.Errorf("entry fields wrong: %+v", e)
	}
	if e.Exceedance != "over" || e.Threshold != 8 || e.Datapoints != 3 {
		t.Errorf("rule fields wrong: %+v", e)
	}
	if e.MonitorID != started.MonitorID.String() {
		t.Errorf("monitor id = %q, want %q", e.MonitorID, started.MonitorID)
	}
	if e.Timestamp.Unix() != started.Time.Unix() {
		t.Errorf("timestamp = %v, want %v", e.Timestamp.Unix(), started.Time.Unix())
	}
}

func TestJournalRecordsPreviousRuleOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarms.db")
	j, err := NewJournal(path, discardLogger())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer j.Close()

	prev := sampleEvent()
	next := prev
	next.Rule.Name = "critical load"
	j.AlarmChanged(context.Background(), prev, next)

	entries, err := j.Events(context.Background(), 1)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].RuleName != "critical load" || entries[0].PreviousRule != "high load" {
		t.Errorf("change entry wrong: %+v", entries[0])
	}
}

func TestEmailFormats(t *testing.T) {
	ev := sampleEvent()

	subject, body := formatStarted(ev)
	if !strings.Contains(subject, "high load") || !strings.Contains(subject, "testhost") {
		t.Errorf("started subject missing rule or node: %q", subject)
	}
	if !strings.Contains(body, "Load Average") || !strings.Contains(body, "over 8 for 3 datapoints") {
		t.Errorf("started body missing details: %q", body)
	}

	subject, body = formatEnded(ev)
	if !strings.Contains(subject, "Alarm ended") {
		t.Errorf("ended subject wrong: %q", subject)
	}
	if !strings.Contains(body, "has ended") {
		t.Errorf("ended body wrong: %q", body)
	}

	next := ev
	next.Rule.Name = "critical load"
	next.Rule.Value = 16
	subject, body = formatChanged(ev, next)
	if !strings.Contains(subject, "from high load to critical load") {
		t.Errorf("changed subject wrong: %q", subject)
	}
	if !strings.Contains(body, "from being over 8 for 3 datapoints") ||
		!strings.Contains(body, "to being over 16 for 3 datapoints") {
		t.Errorf("changed body missing transition: %q", body)
	}

	subject, body = formatReminder(ev)
	if !strings.Contains(subject, "Alarm reminder") {
		t.Errorf("reminder subject wrong: %q", subject)
	}
	if !strings.Contains(body, "still active") || !strings.Contains(body, "10m0s") {
		t.Errorf("reminder body missing interval: %q", body)
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	_, _, err := Build(config.NotifierConfig{Kind: "pigeon"}, discardLogger())
	if err == nil {
		t.Fatal("Build accepted an unknown notifier kind")
	}
}

func TestBuildJournal(t *testing.T) {
	nc := config.NotifierConfig{
		Kind: config.NotifierJournal,
		Path: filepath.Join(t.TempDir(), "alarms.db"),
	}
	n, closeFn, err := Build(nc, discardLogger())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	n.AlarmStarted(context.Background(), sampleEvent())
	if err := closeFn(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}
