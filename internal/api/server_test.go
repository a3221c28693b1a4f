package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/Dacada/simple-monitor/internal/monitor"
)

type stubSampler struct {
	v    float64
	unit string
}

func (s *stubSampler) Produce(_ context.Context) float64 { return s.v }
func (s *stubSampler) Unit() string                      { return s.unit }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, reg *monitor.Registry) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(reg, NewHub(discardLogger()), discardLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusEndpoint(t *testing.T) {
	logger := discardLogger()
	reg := monitor.NewRegistry(time.Second, logger)
	rules := []monitor.Rule{{Name: "high load", Exceedance: monitor.Over, Value: 8, Count: 3}}
	m := monitor.New("load_average", "Load Average", &stubSampler{v: 2.5, unit: "load"}, rules, logger)
	reg.Add(m)
	reg.TickAll(context.Background(), time.Now())

	srv := newTestServer(t, reg)
	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Title  string `json:"title"`
		Unit   string `json:"unit"`
		Alarms []struct {
			Name string `json:"name"`
		} `json:"alarms"`
		Values []struct {
			X time.Time `json:"x"`
			Y float64   `json:"y"`
		} `json:"values"`
		ActiveAlarm *struct {
			Name string `json:"name"`
		} `json:"active_alarm"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d monitors, want 1", len(got))
	}
	s := got[0]
	if s.ID != m.ID().String() {
		t.Errorf("id = %q, want %q", s.ID, m.ID())
	}
	if s.Name != "load_average" || s.Title != "Load Average" || s.Unit != "load" {
		t.Errorf("identity fields wrong: %+v", s)
	}
	if len(s.Alarms) != 1 || s.Alarms[0].Name != "high load" {
		t.Errorf("alarms = %+v", s.Alarms)
	}
	if len(s.Values) != 1 || s.Values[0].Y != 2.5 {
		t.Errorf("values = %+v", s.Values)
	}
	if s.ActiveAlarm != nil {
		t.Errorf("active_alarm = %+v, want null", s.ActiveAlarm)
	}
}

func TestStatusEndpointEmptyRegistry(t *testing.T) {
	reg := monitor.NewRegistry(time.Second, discardLogger())
	srv := newTestServer(t, reg)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if got := strings.TrimSpace(string(body)); got != "[]" {
		t.Errorf("empty registry body = %q, want []", got)
	}
}

func TestHealthz(t *testing.T) {
	reg := monitor.NewRegistry(time.Second, discardLogger())
	srv := newTestServer(t, reg)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := monitor.NewRegistry(time.Second, discardLogger())
	srv := newTestServer(t, reg)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}

func TestMethodAndPathErrors(t *testing.T) {
	reg := monitor.NewRegistry(time.Second, discardLogger())
	srv := newTestServer(t, reg)

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d, want 405", resp.StatusCode)
	}
}

func TestWebSocketReceivesStatusPush(t *testing.T) {
	logger := discardLogger()
	reg := monitor.NewRegistry(time.Second, logger)
	m := monitor.New("load_average", "Load Average", &stubSampler{v: 1.5, unit: "load"}, nil, logger)
	reg.Add(m)
	reg.TickAll(context.Background(), time.Now())

	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(reg, hub, logger))
	defer srv.Close()

	// Broadcast before the client connects; registration replays the
	// latest payload so the read below is deterministic.
	hub.BroadcastStatus(reg.StatusList())

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readPush := func() (string, int, string) {
		_, data, err := conn.Read(dialCtx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg struct {
			Type     string `json:"type"`
			Monitors []struct {
				Title string `json:"title"`
			} `json:"monitors"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		title := ""
		if len(msg.Monitors) > 0 {
			title = msg.Monitors[0].Title
		}
		return msg.Type, len(msg.Monitors), title
	}

	typ, n, title := readPush()
	if typ != "status" || n != 1 || title != "Load Average" {
		t.Errorf("replayed push = %q %d %q", typ, n, title)
	}

	// A live broadcast reaches the connected client too.
	hub.BroadcastStatus(reg.StatusList())
	typ, n, _ = readPush()
	if typ != "status" || n != 1 {
		t.Errorf("live push = %q %d", typ, n)
	}
}
