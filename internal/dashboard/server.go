// Package dashboard serves a live sync monitor over WebSocket.
//
// Connected clients receive a stats message on connect and then every
// sync_state, sync_complete and stats message the Handler produces while
// passes run.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncState is sent on every sequencer state change.
	MessageTypeSyncState MessageType = "sync_state"

	// MessageTypeSyncComplete is sent when a pass ends, successfully or not.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeStats carries the current counters.
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds server configuration
type Config struct {
	// Host to bind; empty binds every interface.
	Host string

	// Port to listen on; 0 picks a free port.
	Port int `validate:"gte=0,lte=65535"`

	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:   "127.0.0.1",
		Port:   8080,
		Logger: logrus.StandardLogger().WithField("component", "dashboard"),
	}
}

// clientQueue is how many encoded messages may wait for one client before
// it is dropped as too slow.
const clientQueue = 64

const writeTimeout = 5 * time.Second

// client is one monitor connection with its own outgoing queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close(code, reason)
	})
}

// Server fans dashboard messages out to WebSocket clients. Every client is
// written by its own goroutine so one stalled monitor cannot hold back the
// others.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	mu      sync.RWMutex
	clients map[*client]struct{}
	welcome func() Message
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger logrus.FieldLogger
}

// NewServer creates a dashboard server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		clients: make(map[*client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// SetWelcome sets the message sent to each client on connect. Without one
// clients get an empty stats message.
func (s *Server) SetWelcome(fn func() Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.welcome = fn
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.WithField("addr", ln.Addr().String()).Info("dashboard listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("dashboard server failed")
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	s.cancel()
	for c := range clients {
		c.close(websocket.StatusGoingAway, "dashboard stopping")
	}

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if serr := s.server.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", serr)
		}
	}
	s.wg.Wait()
	s.logger.Info("dashboard stopped")
	return err
}

// Broadcast encodes msg once and queues it for every client. A client whose
// queue is full is disconnected.
func (s *Server) Broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		s.logger.WithError(err).WithField("type", msg.Type).Warn("failed to encode message")
		return
	}

	var slow []*client
	s.mu.RLock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.logger.Warn("dropping slow dashboard client")
		s.drop(c, websocket.StatusPolicyViolation, "too slow")
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientQueue)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "dashboard stopping")
		return
	}
	msg := Message{Type: MessageTypeStats}
	if s.welcome != nil {
		msg = s.welcome()
	}
	if data, err := encode(msg); err == nil {
		c.send <- data
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.wg.Add(1)
	s.mu.Unlock()
	s.logger.WithField("clients", count).Info("dashboard client connected")

	go s.writeLoop(c)

	// Client frames are ignored; reading notices the disconnect.
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			break
		}
	}
	s.drop(c, websocket.StatusNormalClosure, "")
}

func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	for data := range c.send {
		ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			s.logger.WithError(err).Debug("dashboard write failed")
			s.drop(c, websocket.StatusInternalError, "write failed")
			return
		}
	}
}

func (s *Server) drop(c *client, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	count := len(s.clients)
	s.mu.Unlock()

	c.close(code, reason)
	if ok {
		s.logger.WithField("clients", count).Info("dashboard client disconnected")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}{"ok", s.ClientCount()})
}

// monitorPage prints every message it receives from /ws.
const monitorPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>AuditPro Sync Monitor</title></head>
<body>
<h1>AuditPro Sync Monitor</h1>
<p id="stats">waiting for stats</p>
<pre id="log"></pre>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "stats") {
    const d = msg.data || {};
    document.getElementById("stats").textContent =
      "state " + d.state + ", pending " + d.pending_audits + ", stores " + d.stores + ", products " + d.products;
    return;
  }
  const line = msg.timestamp + " " + msg.type + " " + JSON.stringify(msg.data) + "\n";
  document.getElementById("log").prepend(line);
};
</script>
</body>
</html>
`

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, monitorPage)
}

// Addr returns the listening address, which resolves port 0 after Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
