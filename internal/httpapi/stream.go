package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamesprial/nobreak-mcp/internal/coordinator"
	"github.com/jamesprial/nobreak-mcp/internal/nobreak"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	clientBuffer = 8
)

// Event is one poll outcome as sent over the stream.
type Event struct {
	At        time.Time       `json:"at"`
	OK        bool            `json:"ok"`
	OnBattery bool            `json:"on_battery"`
	Status    *nobreak.Status `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// NewEvent converts a coordinator update.
func NewEvent(u coordinator.Update) Event {
	ev := Event{At: u.At, OK: u.OK(), Status: u.Status}
	if u.Status != nil {
		ev.OnBattery = u.Status.OnBattery()
	}
	if u.Err != nil {
		ev.Error = u.Err.Error()
	}
	return ev
}

var _ coordinator.Observer = (*Stream)(nil)

// Stream fans coordinator updates out to websocket clients. Each client has a
// small buffer; a client that falls behind misses updates rather than
// stalling the poll loop.
type Stream struct {
	upgrader websocket.Upgrader
	initial  func() (coordinator.Update, bool)

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool

	dropped atomic.Int64
}

type streamClient struct {
	send chan []byte
	quit chan struct{}
	once sync.Once
}

func (c *streamClient) stop() { c.once.Do(func() { close(c.quit) }) }

// NewStream returns a Stream. If initial is non-nil, its update is sent to
// each client as soon as it connects. initial is called with the stream's
// lock held and must not call back into the Stream.
func NewStream(initial func() (coordinator.Update, bool)) *Stream {
	return &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		initial: initial,
		clients: make(map[*streamClient]struct{}),
	}
}

// OnUpdate implements coordinator.Observer.
func (s *Stream) OnUpdate(u coordinator.Update) {
	data, err := json.Marshal(NewEvent(u))
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns how many per-client messages were skipped.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// Close disconnects every client and refuses new ones.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		c.stop()
	}
}

// add registers c and queues the initial event. Both happen under s.mu, so
// no update published in between can be missed.
func (s *Stream) add(c *streamClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	if s.initial != nil {
		if u, ok := s.initial(); ok {
			if data, err := json.Marshal(NewEvent(u)); err == nil {
				c.send <- data
			}
		}
	}
	return true
}

func (s *Stream) remove(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the stream is closed.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		return
	}
	defer conn.Close()

	c := &streamClient{send: make(chan []byte, clientBuffer), quit: make(chan struct{})}
	if !s.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return
	}
	defer s.remove(c)

	go s.readLoop(conn, c)
	s.writeLoop(conn, c)
}

// readLoop discards client frames; it exists to process pongs and notice
// disconnects.
func (s *Stream) readLoop(conn *websocket.Conn, c *streamClient) {
	defer c.stop()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) writeLoop(conn *websocket.Conn, c *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("httpapi: stream write: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
