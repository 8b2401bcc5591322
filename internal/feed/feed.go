// Package feed pushes engine events to websocket observers. One hub fans
// every published event out to any number of connected clients; a slow
// client is dropped rather than ever stalling the broadcast.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillback/spheretrace/internal/engine"
	"github.com/quillback/spheretrace/internal/sweep"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

// Frame is the wire form of one engine event.
type Frame struct {
	Kind  string `json:"kind"`
	Token string `json:"token,omitempty"`
	Game  string `json:"game,omitempty"`
	Error string `json:"error,omitempty"`

	Snapshot *SnapshotFrame `json:"snapshot,omitempty"`

	Processed int64 `json:"processed,omitempty"`
	Pending   int   `json:"pending,omitempty"`
}

// SnapshotFrame is the wire form of a published snapshot.
type SnapshotFrame struct {
	Version             int64          `json:"version"`
	Digest              string         `json:"digest"`
	Inventory           map[string]int `json:"inventory"`
	CheckedLocations    []string       `json:"checked_locations"`
	AccessibleLocations []string       `json:"accessible_locations"`
	AccessibleRegions   []string       `json:"accessible_regions"`
}

func snapshotFrame(snap *sweep.Snapshot) *SnapshotFrame {
	checked := make([]string, 0, len(snap.CheckedLocations))
	for loc := range snap.CheckedLocations {
		checked = append(checked, loc)
	}
	sort.Strings(checked)
	return &SnapshotFrame{
		Version:             snap.Version,
		Digest:              snap.Digest,
		Inventory:           snap.Inventory,
		CheckedLocations:    checked,
		AccessibleLocations: snap.AccessibleLocations(),
		AccessibleRegions:   snap.AccessibleRegions(),
	}
}

func encodeFrame(ev engine.Event) ([]byte, error) {
	frame := Frame{
		Kind:      string(ev.Kind),
		Token:     ev.Token,
		Game:      ev.Game,
		Processed: ev.Processed,
		Pending:   ev.Pending,
	}
	if ev.Err != nil {
		frame.Error = ev.Err.Error()
	}
	if ev.Snapshot != nil {
		frame.Snapshot = snapshotFrame(ev.Snapshot)
	}
	return json.Marshal(frame)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server bridges one engine's event stream onto websocket connections.
type Server struct {
	eng      *engine.Engine
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer creates a feed for a running engine.
func NewServer(eng *engine.Engine) *Server {
	return &Server{
		eng: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Run subscribes to the engine and broadcasts every event until the
// context ends or the engine closes the subscription.
func (s *Server) Run(ctx context.Context) {
	sub := s.eng.Subscribe(sendBufferSize)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case ev, ok := <-sub.C:
			if !ok {
				s.closeAll()
				return
			}
			payload, err := encodeFrame(ev)
			if err != nil {
				slog.Error("feed frame encoding failed", "kind", ev.Kind, "error", err)
				continue
			}
			s.broadcast(payload)
		}
	}
}

// Handler upgrades requests and attaches them to the broadcast set.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
		s.register(c)
		slog.Info("feed client connected", "remote", conn.RemoteAddr())

		go s.writePump(c)
		s.readPump(c)
	}
}

// ClientCount returns the number of attached clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// broadcast queues a payload for every client, dropping clients whose
// buffers are full.
func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			slog.Warn("dropping slow feed client", "remote", c.conn.RemoteAddr())
			delete(s.clients, c)
			close(c.send)
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// readPump drains inbound messages until the peer disconnects. The feed
// is one-way; inbound payloads are ignored.
func (s *Server) readPump(c *client) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
