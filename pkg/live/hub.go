// Package live streams newly recorded readings to WebSocket clients.
package live

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header means a non-browser client.
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// client owns its connection's write side; only writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broadcast messages out to every connected client.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once

	mu  sync.RWMutex
	log zerolog.Logger
}

// NewHub creates a hub. It does nothing until Serve runs.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client, config.WSChannelBuffer),
		unregister: make(chan *client, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
		done:       make(chan struct{}),
		log:        logging.Component("live"),
	}
}

// String names the hub for the supervisor.
func (h *Hub) String() string { return "live-hub" }

// Serve runs the hub loop until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.LiveClients.Set(float64(count))
			h.log.Debug().Int("clients", count).Msg("client connected")
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.LiveClients.Set(float64(count))
			h.log.Debug().Int("clients", count).Msg("client disconnected")
		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; its writePump exits once send closes.
					h.log.Warn().Msg("client send buffer full, disconnecting")
					h.drop(c)
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.LiveClients.Set(float64(count))
		}
	}
}

// drop removes c; callers hold mu.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// Broadcast queues v for every client. A full queue drops the message.
func (h *Hub) Broadcast(v any) error {
	message, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
	default:
		h.log.Warn().Msg("broadcast channel full, dropping message")
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles GET /api/ws upgrade requests.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, config.WSChannelBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump consumes control frames until the peer goes away.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump is the connection's only writer: queued messages and pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Debug().Err(err).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
