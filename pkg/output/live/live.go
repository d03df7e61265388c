// Package live streams run events to WebSocket clients.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itohio/tempgraph/pkg/output"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer = 64
	closeWait  = time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to connected clients. A client joining mid run first
// receives the run's begin event and the latest measurement.
type Hub struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	begin   []byte
	latest  []byte
}

var _ output.Publisher = (*Hub)(nil)

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	for _, msg := range [][]byte{h.begin, h.latest} {
		if msg != nil {
			c.send <- msg
		}
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.WithField("clients", n).Debug("Client connected")

	go func() {
		defer conn.Close()
		for msg := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer h.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	h.log.WithField("clients", n).Debug("Client disconnected")
}

// Publish broadcasts e. Slow clients miss messages rather than block the run.
func (h *Hub) Publish(_ context.Context, e output.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch e.Type {
	case output.EventBegin:
		h.begin, h.latest = data, nil
	case output.EventMeasurement:
		h.latest = data
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "run ended")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		h.drop(c)
	}
	return nil
}
