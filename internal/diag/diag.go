// Package diag is an optional, flag-gated diagnostic event stream: it
// tails arbiter lifecycle events (pair-up, placement, AI takeover,
// reap, shutdown) over a websocket so a developer can watch an
// integration test or a local server from the outside. It is not part
// of the in-scope game JSON/HTTP protocol, which stays an external
// collaborator per spec.md §1.
//
// Grounded on the teacher's web/ws.go upgrade handler and
// tkahng-quick-sticks' websocket package: an http.Handler that upgrades
// the connection, then a goroutine-per-connection write pump draining a
// per-client buffered channel.
package diag

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one lifecycle notification, serialised as JSON to every
// connected tailer.
type Event struct {
	Time   time.Time      `json:"time"`
	Name   string         `json:"event"`
	Detail map[string]any `json:"detail,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Stream fans arbiter events out to any number of connected websocket
// tailers. It implements arbiter.EventSink.
type Stream struct {
	addr string
	log  *log.Logger

	mu      sync.Mutex
	clients map[*client]struct{}

	server   *http.Server
	shutdown chan struct{}
}

type client struct {
	conn *websocket.Conn
	out  chan Event
}

// New creates a Stream that will listen on addr (e.g. "127.0.0.1:8089")
// once Start is called.
func New(addr string, logger *log.Logger) *Stream {
	return &Stream{
		addr:     addr,
		log:      logger,
		clients:  make(map[*client]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Emit satisfies arbiter.EventSink: it is called from the arbiter's own
// goroutine, so it must never block — each client has its own bounded
// outbox and a slow tailer is dropped rather than stalling the arbiter.
func (s *Stream) Emit(name string, detail map[string]any) {
	ev := Event{Time: time.Now(), Name: name, Detail: detail}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- ev:
		default:
			s.log.Printf("diag: dropping slow tailer")
			delete(s.clients, c)
			close(c.out)
		}
	}
}

func (s *Stream) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("diag: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, out: make(chan Event, 64)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writePump(c)
}

func (s *Stream) writePump(c *client) {
	defer c.conn.Close()
	for ev := range c.out {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
			return
		}
	}
}

// String satisfies conf.Manager.
func (s *Stream) String() string { return "Diagnostic Stream" }

// Start listens and serves until Shutdown is called. It is meant to run
// in its own goroutine, matching conf.Manager's Start contract.
func (s *Stream) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.server = &http.Server{Addr: s.addr, Handler: mux}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Printf("diag: serve: %v", err)
	}
}

// Shutdown closes every connected tailer and stops the listener.
func (s *Stream) Shutdown() {
	s.mu.Lock()
	for c := range s.clients {
		close(c.out)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Close()
	}
}
