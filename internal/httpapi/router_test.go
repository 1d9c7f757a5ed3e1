package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockSource struct {
	latest *nobreak.Status
	last   *coordinator.Update
	stats  coordinator.Stats
}

func (m *mockSource) Latest() (nobreak.Status, bool) {
	if m.latest == nil {
		return nobreak.Status{}, false
	}
	return *m.latest, true
}

func (m *mockSource) LastUpdate() (coordinator.Update, bool) {
	if m.last == nil {
		return coordinator.Update{}, false
	}
	return *m.last, true
}

func (m *mockSource) Stats() coordinator.Stats { return m.stats }

var _ Source = (*mockSource)(nil)
var _ Source = (*coordinator.Coordinator)(nil)

var snapshot = nobreak.Status{VoltageIn: 126, PowerSource: nobreak.PowerSourceGrid, BatteryPercentage: 99}

func okUpdate() *coordinator.Update {
	st := snapshot
	return &coordinator.Update{Status: &st, At: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func failedUpdate() *coordinator.Update {
	return &coordinator.Update{Err: errors.New("nobreak: fetch status: request timed out"), At: time.Now()}
}

func do(t *testing.T, h http.Handler, method, path, authz string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Router
// ---------------------------------------------------------------------------

func Test_Health_Cases(t *testing.T) {
	tests := []struct {
		name       string
		src        *mockSource
		wantStatus int
		wantOK     bool
		wantError  string
	}{
		{name: "never polled", src: &mockSource{}, wantStatus: http.StatusServiceUnavailable},
		{name: "last poll ok", src: &mockSource{latest: &snapshot, last: okUpdate()}, wantStatus: http.StatusOK, wantOK: true},
		{
			name:       "last poll failed",
			src:        &mockSource{latest: &snapshot, last: failedUpdate(), stats: coordinator.Stats{ConsecutiveFailures: 3}},
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, NewRouter(Options{Source: tt.src}), http.MethodGet, "/healthz", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var h Health
			if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if h.OK != tt.wantOK {
				t.Errorf("ok = %v, want %v", h.OK, tt.wantOK)
			}
			if !strings.Contains(h.LastError, tt.wantError) {
				t.Errorf("last_error = %q, want it to contain %q", h.LastError, tt.wantError)
			}
			if h.Stats != tt.src.stats {
				t.Errorf("stats = %+v, want %+v", h.Stats, tt.src.stats)
			}
		})
	}
}

func Test_Snapshot_Cases(t *testing.T) {
	tests := []struct {
		name       string
		src        *mockSource
		wantStatus int
	}{
		{name: "no snapshot yet", src: &mockSource{}, wantStatus: http.StatusServiceUnavailable},
		{name: "snapshot kept after failure", src: &mockSource{latest: &snapshot, last: failedUpdate()}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, NewRouter(Options{Source: tt.src}), http.MethodGet, "/api/snapshot", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got nobreak.Status
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if got != snapshot {
				t.Errorf("snapshot = %+v, want %+v", got, snapshot)
			}
		})
	}
}

func Test_Router_OptionalRoutesAndAuth(t *testing.T) {
	marker := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(name))
		})
	}
	full := NewRouter(Options{
		Source:    &mockSource{},
		Metrics:   marker("metrics"),
		MCP:       marker("mcp"),
		AuthToken: "tok",
	})
	bare := NewRouter(Options{Source: &mockSource{}})

	tests := []struct {
		name       string
		router     http.Handler
		method     string
		path       string
		authz      string
		wantStatus int
		wantBody   string
	}{
		{name: "metrics open", router: full, method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK, wantBody: "metrics"},
		{name: "mcp without token", router: full, method: http.MethodPost, path: "/mcp", wantStatus: http.StatusUnauthorized},
		{name: "mcp with token", router: full, method: http.MethodPost, path: "/mcp", authz: "Bearer tok", wantStatus: http.StatusOK, wantBody: "mcp"},
		{name: "mcp wrong token", router: full, method: http.MethodPost, path: "/mcp", authz: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "metrics absent", router: bare, method: http.MethodGet, path: "/metrics", wantStatus: http.StatusNotFound},
		{name: "mcp absent", router: bare, method: http.MethodPost, path: "/mcp", wantStatus: http.StatusNotFound},
		{name: "snapshot wrong method", router: bare, method: http.MethodPost, path: "/api/snapshot", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, tt.router, tt.method, tt.path, tt.authz)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return ev
}

func waitClients(t *testing.T, s *Stream, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", s.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func Test_Stream_SendsInitialThenUpdates(t *testing.T) {
	src := &mockSource{latest: &snapshot, last: okUpdate()}
	stream := NewStream(src.LastUpdate)
	srv := httptest.NewServer(NewRouter(Options{Source: src, Stream: stream}))
	defer srv.Close()
	defer stream.Close()

	conn := dialStream(t, srv)

	first := readEvent(t, conn)
	if !first.OK || first.Status == nil || first.Status.VoltageIn != 126 {
		t.Errorf("initial event = %+v", first)
	}

	waitClients(t, stream, 1)
	stream.OnUpdate(*failedUpdate())

	ev := readEvent(t, conn)
	if ev.OK || ev.Status != nil || !strings.Contains(ev.Error, "timed out") {
		t.Errorf("failure event = %+v", ev)
	}
}

func Test_Stream_UpdateDuringConnectIsDelivered(t *testing.T) {
	var stream *Stream
	stream = NewStream(func() (coordinator.Update, bool) {
		// A poll completes while the client is being registered.
		go stream.OnUpdate(*failedUpdate())
		time.Sleep(50 * time.Millisecond)
		return *okUpdate(), true
	})
	srv := httptest.NewServer(NewRouter(Options{Source: &mockSource{}, Stream: stream}))
	defer srv.Close()
	defer stream.Close()

	conn := dialStream(t, srv)

	if ev := readEvent(t, conn); !ev.OK {
		t.Errorf("first event = %+v, want the initial snapshot", ev)
	}
	if ev := readEvent(t, conn); ev.OK || ev.Error == "" {
		t.Errorf("second event = %+v, want the update published while connecting", ev)
	}
}

func Test_Stream_FansOutAndForgetsClosedClients(t *testing.T) {
	stream := NewStream(nil)
	srv := httptest.NewServer(NewRouter(Options{Source: &mockSource{}, Stream: stream}))
	defer srv.Close()
	defer stream.Close()

	a := dialStream(t, srv)
	b := dialStream(t, srv)
	waitClients(t, stream, 2)

	stream.OnUpdate(*okUpdate())
	for _, c := range []*websocket.Conn{a, b} {
		if ev := readEvent(t, c); !ev.OK {
			t.Errorf("event = %+v, want ok", ev)
		}
	}

	_ = a.Close()
	waitClients(t, stream, 1)
}

func Test_Stream_SlowClientDoesNotBlock(t *testing.T) {
	stream := NewStream(nil)
	srv := httptest.NewServer(NewRouter(Options{Source: &mockSource{}, Stream: stream}))
	defer srv.Close()
	defer stream.Close()

	_ = dialStream(t, srv) // never reads
	waitClients(t, stream, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			stream.OnUpdate(*okUpdate())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("OnUpdate blocked on a slow client")
	}
	if stream.Dropped() == 0 {
		t.Error("expected some updates to be dropped for the slow client")
	}
}

func Test_Stream_CloseDisconnectsClients(t *testing.T) {
	stream := NewStream(nil)
	srv := httptest.NewServer(NewRouter(Options{Source: &mockSource{}, Stream: stream}))
	defer srv.Close()

	conn := dialStream(t, srv)
	waitClients(t, stream, 1)

	stream.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() error = %v, want normal closure", err)
	}
	waitClients(t, stream, 0)
}

func Test_Stream_RejectsPlainHTTP(t *testing.T) {
	rec := do(t, NewRouter(Options{Source: &mockSource{}, Stream: NewStream(nil)}), http.MethodGet, "/api/stream", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
