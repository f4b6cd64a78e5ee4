// Package remote serves a loopback websocket that streams frame reports and lets a tool switch
// render graph nodes while the renderer runs.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine/graph"
	"github.com/Carmen-Shannon/oxy-voxel/engine/world"
	"github.com/gorilla/websocket"
)

const (
	// MessageFrame carries a world.FrameReport.
	MessageFrame = "FRAME"
	// MessageSettings carries toggles from a client, and the resulting settings back to it.
	MessageSettings = "SETTINGS"
	// MessageError reports a rejected client message.
	MessageError = "ERROR"

	writeTimeout = 5 * time.Second
)

// SettingsSink is what the server reads and writes settings through. world.World satisfies it.
type SettingsSink interface {
	Settings() graph.Settings
	SetSettings(s graph.Settings)
}

// Message is the envelope of every websocket message.
type Message struct {
	Type string `json:"type"`
	// Toggles switches nodes by name, e.g. {"physics": false}. Client to server only.
	Toggles map[string]bool `json:"toggles,omitempty"`
	// Settings is the full toggle set after a SETTINGS message was applied.
	Settings *graph.Settings `json:"settings,omitempty"`
	// Report is a frame report.
	Report *world.FrameReport `json:"report,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type client struct {
	out chan []byte
}

// Server is the remote control server.
type Server struct {
	mu      sync.Mutex
	sink    SettingsSink
	clients map[*client]struct{}

	upgrader websocket.Upgrader
	buffer   int
}

// NewServer creates a server writing settings to sink.
//
// Parameters:
//   - sink: the settings owner, usually the world
//   - options: functional options to configure the server
//
// Returns:
//   - *Server: the new server
func NewServer(sink SettingsSink, options ...ServerBuilderOption) *Server {
	s := &Server{
		sink:    sink,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     checkOrigin,
		},
		buffer: 64,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Handler returns the server's routes: /ws and /settings.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/settings", s.handleSettings)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
//
// Parameters:
//   - ctx: stops the server when done
//   - addr: the listen address; must be a loopback address
//
// Returns:
//   - error: if addr is not loopback or the listener fails
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if host != "localhost" && !isLoopback(host) {
		return fmt.Errorf("remote: %s is not a loopback address", addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	common.Logger().Info("remote control listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("remote: %w", err)
	}
	return nil
}

// Publish sends a frame report to every client. Clients that fall behind miss reports.
// It is a world.Observer.
func (s *Server) Publish(report world.FrameReport) {
	b, err := json.Marshal(Message{Type: MessageFrame, Report: &report})
	if err != nil {
		common.Logger().Warn("remote report encode failed", "frame", report.Frame, "err", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- b:
		default:
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleSettings(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(s.sink.Settings())
}

func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := &client{out: make(chan []byte, s.buffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-c.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		reply := s.apply(raw)
		b, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		select {
		case c.out <- b:
		case <-ctx.Done():
		}
	}

	cancel()
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}

// apply handles one client message and returns the reply.
func (s *Server) apply(raw []byte) Message {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{Type: MessageError, Error: "bad message: " + err.Error()}
	}
	if msg.Type != MessageSettings {
		return Message{Type: MessageError, Error: fmt.Sprintf("unexpected message type %q", msg.Type)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.sink.Settings()
	for name, on := range msg.Toggles {
		kind, ok := graph.ParsePassKind(name)
		if !ok || !settings.Set(kind, on) {
			return Message{Type: MessageError, Error: fmt.Sprintf("unknown toggle %q", name)}
		}
	}
	s.sink.SetSettings(settings)
	common.Logger().Info("remote settings applied", "toggles", msg.Toggles)
	return Message{Type: MessageSettings, Settings: &settings}
}

// checkOrigin accepts clients that send no Origin, and pages served from a loopback host.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || isLoopback(host)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return isLoopback(host)
}

func isLoopback(host string) bool {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
