package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mmdvmstate/internal/adapters/bus"
	"mmdvmstate/internal/adapters/http/api"
	"mmdvmstate/internal/domain/model"
)

// stubDeps backs the handlers with canned state and a real event bus.
type stubDeps struct {
	b         *bus.Bus
	snap      model.SystemState
	qsos      map[string]model.QSO
	hist      []model.QSO
	health    model.HealthStatus
	lastLimit int
}

func newStubDeps() *stubDeps {
	return &stubDeps{
		b:    bus.New(),
		qsos: make(map[string]model.QSO),
	}
}

func (s *stubDeps) Snapshot() model.SystemState { return s.snap }

func (s *stubDeps) GetQSO(id string) (model.QSO, bool) {
	q, ok := s.qsos[id]
	return q, ok
}

func (s *stubDeps) History(limit int) []model.QSO {
	s.lastLimit = limit
	return s.hist
}

func (s *stubDeps) Subscribe() *bus.Subscription      { return s.b.Subscribe() }
func (s *stubDeps) Unsubscribe(sub *bus.Subscription) { s.b.Unsubscribe(sub) }
func (s *stubDeps) Health() model.HealthStatus        { return s.health }

func newTestServer(t *testing.T, deps *stubDeps, opts ...api.WSOption) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		deps.b.Close()
		srv.Close()
	})
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	deps := newStubDeps()
	deps.snap = model.SystemState{
		CurrentMode: model.ModeDMR,
		ModemState:  model.ModemRX,
		ActiveQSOs:  []model.QSO{{ID: "abc", Mode: model.ModeDMR, Status: model.StatusActive}},
	}
	srv := newTestServer(t, deps)

	var got model.SystemState
	getJSON(t, srv.URL+"/api/v1/status", http.StatusOK, &got)

	if got.CurrentMode != model.ModeDMR || got.ModemState != model.ModemRX {
		t.Errorf("snapshot = %+v", got)
	}
	if len(got.ActiveQSOs) != 1 || got.ActiveQSOs[0].ID != "abc" {
		t.Errorf("active qsos = %+v", got.ActiveQSOs)
	}
}

func TestStatusMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newStubDeps())

	resp, err := http.Post(srv.URL+"/api/v1/status", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestGetQSO(t *testing.T) {
	deps := newStubDeps()
	deps.qsos["abc"] = model.QSO{ID: "abc", Mode: model.ModeYSF, Status: model.StatusCompleted}
	srv := newTestServer(t, deps)

	var got model.QSO
	getJSON(t, srv.URL+"/api/v1/qsos/abc", http.StatusOK, &got)
	if got.ID != "abc" || got.Mode != model.ModeYSF {
		t.Errorf("qso = %+v", got)
	}

	getJSON(t, srv.URL+"/api/v1/qsos/missing", http.StatusNotFound, nil)
	getJSON(t, srv.URL+"/api/v1/qsos/", http.StatusBadRequest, nil)
}

func TestHistoryEndpoint(t *testing.T) {
	deps := newStubDeps()
	deps.hist = []model.QSO{{ID: "newest"}, {ID: "older"}}
	srv := newTestServer(t, deps)

	var got []model.QSO
	getJSON(t, srv.URL+"/api/v1/history", http.StatusOK, &got)
	if len(got) != 2 || got[0].ID != "newest" {
		t.Errorf("history = %+v", got)
	}
	if deps.lastLimit != 50 {
		t.Errorf("default limit = %d, want 50", deps.lastLimit)
	}

	getJSON(t, srv.URL+"/api/v1/history?limit=7", http.StatusOK, &got)
	if deps.lastLimit != 7 {
		t.Errorf("limit = %d, want 7", deps.lastLimit)
	}

	getJSON(t, srv.URL+"/api/v1/history?limit=0", http.StatusBadRequest, nil)
	getJSON(t, srv.URL+"/api/v1/history?limit=x", http.StatusBadRequest, nil)
}

func TestHealthEndpoint(t *testing.T) {
	deps := newStubDeps()
	deps.health = model.HealthStatus{Healthy: true, Version: "1.0.0", TotalQSOsProcessed: 12}
	srv := newTestServer(t, deps)

	var got model.HealthStatus
	getJSON(t, srv.URL+"/healthz", http.StatusOK, &got)
	if !got.Healthy || got.Version != "1.0.0" || got.TotalQSOsProcessed != 12 {
		t.Errorf("health = %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newStubDeps())

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketStreamsEvents(t *testing.T) {
	deps := newStubDeps()
	srv := newTestServer(t, deps)
	conn := dialWS(t, srv)

	// Give the handler a moment to register its subscription.
	deadline := time.Now().Add(2 * time.Second)
	for deps.b.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket session never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sent := model.NewEvent(model.EventQSOStarted, time.Now(), model.SeverityInfo, map[string]any{
		"source_callsign": "G4KLX",
	})
	deps.b.Publish(sent)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != sent.ID || got.Type != model.EventQSOStarted {
		t.Errorf("event = %+v, want id %s", got, sent.ID)
	}
	if got.Data["source_callsign"] != "G4KLX" {
		t.Errorf("payload = %v", got.Data)
	}
}

func TestWebSocketClosesWithBus(t *testing.T) {
	deps := newStubDeps()
	srv := newTestServer(t, deps)
	conn := dialWS(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for deps.b.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket session never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	deps.b.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected close after bus shutdown")
	}
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Logf("close error = %v", err)
	}
}

func TestWebSocketSessionCap(t *testing.T) {
	deps := newStubDeps()
	srv := newTestServer(t, deps, api.WithMaxSessions(1))
	dialWS(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for deps.b.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket session never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 at session cap", resp.StatusCode)
	}
}
