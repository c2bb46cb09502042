// Package gateway is the presentation port of the wearable: any front
// end can attach over HTTP/WebSocket to observe the current match
// snapshot and invoke referee actions. The core never depends on a UI
// framework; this is the narrow surface it exposes instead.
package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 16
)

// Hub fans match snapshots out to attached WebSocket observers. Slow
// observers are disconnected rather than allowed to back-pressure the
// engine.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway serves the device's own display surface.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast sends a payload to every attached observer.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Observer cannot keep up; it will be reaped by its own
			// write pump when the channel closes.
			log.Debug().Msg("dropping snapshot for slow observer")
		}
	}
}

// Attach upgrades an HTTP request and registers the connection,
// sending initial as the first frame.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request, initial []byte) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- initial

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("observer attached")
	return nil
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.detach(c)
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; observers never send data.
func (h *Hub) readPump(c *client) {
	defer h.detach(c)
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
