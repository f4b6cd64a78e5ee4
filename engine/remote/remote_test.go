package remote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/world"
	"github.com/gorilla/websocket"
)

type memorySink struct {
	mu sync.Mutex
	s  graph.Settings
}

func (m *memorySink) Settings() graph.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

func (m *memorySink) SetSettings(s graph.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
}

func newTestServer(t *testing.T) (*Server, *memorySink, *httptest.Server) {
	t.Helper()
	sink := &memorySink{s: graph.DefaultSettings()}
	s := NewServer(sink)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, sink, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestSettingsToggleOverWebsocket(t *testing.T) {
	_, sink, ts := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteJSON(Message{Type: MessageSettings, Toggles: map[string]bool{"physics": false, "trace": false}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	reply := read(t, conn)
	if reply.Type != MessageSettings || reply.Settings == nil {
		t.Fatalf("reply = %+v, want SETTINGS with settings", reply)
	}
	if reply.Settings.Physics || reply.Settings.Trace || !reply.Settings.Clear {
		t.Errorf("reply settings = %+v, want physics and trace off", *reply.Settings)
	}
	if got := sink.Settings(); got.Physics || got.Trace {
		t.Errorf("sink settings = %+v, want physics and trace off", got)
	}
}

func TestRejectedMessages(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{"},
		{"wrong type", `{"type":"HELLO"}`},
		{"unknown toggle", `{"type":"SETTINGS","toggles":{"bloom":true}}`},
		{"node without toggle", `{"type":"SETTINGS","toggles":{"ui":false}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sink, ts := newTestServer(t)
			conn := dial(t, ts)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatalf("WriteMessage() error = %v", err)
			}
			if reply := read(t, conn); reply.Type != MessageError {
				t.Errorf("reply type = %q, want %q", reply.Type, MessageError)
			}
			if got := sink.Settings(); got != graph.DefaultSettings() {
				t.Errorf("sink settings changed to %+v", got)
			}
		})
	}
}

func TestPublishStreamsReports(t *testing.T) {
	s, _, ts := newTestServer(t)
	conn := dial(t, ts)

	deadline := time.Now().Add(5 * time.Second)
	for s.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Publish(world.FrameReport{
		Frame:        12,
		DispatchSize: 3,
		Global:       graph.Report{Nodes: []graph.NodeReport{{Kind: graph.PassVoxelization, Status: graph.StatusSkipped}}},
	})

	msg := read(t, conn)
	if msg.Type != MessageFrame || msg.Report == nil {
		t.Fatalf("message = %+v, want FRAME with report", msg)
	}
	if msg.Report.Frame != 12 || msg.Report.DispatchSize != 3 {
		t.Errorf("report = frame %d dispatch %d, want 12 and 3", msg.Report.Frame, msg.Report.DispatchSize)
	}
	if status, _ := msg.Report.Global.Status(graph.PassVoxelization); status != graph.StatusSkipped {
		t.Errorf("voxelization status = %v, want skipped", status)
	}
}

func TestSettingsEndpoint(t *testing.T) {
	_, sink, ts := newTestServer(t)
	s := sink.Settings()
	s.Automata = false
	sink.SetSettings(s)

	resp, err := http.Get(ts.URL + "/settings")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var got graph.Settings
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != s {
		t.Errorf("settings = %+v, want %+v", got, s)
	}

	resp, err = http.Post(ts.URL+"/settings", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestLoopbackCheck(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:80", true},
		{"[::1]:80", true},
		{"10.0.0.2:80", false},
		{"example.com:80", false},
	}
	for _, tt := range tests {
		if got := isLoopbackRemote(tt.addr); got != tt.want {
			t.Errorf("isLoopbackRemote(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestOriginCheck(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"loopback ip", "http://127.0.0.1:1234", true},
		{"loopback ipv6", "http://[::1]:8080", true},
		{"localhost", "http://localhost", true},
		{"foreign host", "https://evil.example", false},
		{"malformed", "http://%zz", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestForeignOriginRejected(t *testing.T) {
	_, _, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		conn.Close()
		t.Fatal("Dial() error = nil, want a rejected handshake")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Dial() response = %v, want status %d", resp, http.StatusForbidden)
	}

	conn, _, err = websocket.DefaultDialer.Dial(url, http.Header{"Origin": {ts.URL}})
	if err != nil {
		t.Fatalf("Dial(loopback origin) error = %v", err)
	}
	conn.Close()
}
