package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/7789996399/Meerkat-API/internal/domain"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

// streamClient serializes writes to one connection; pings and broadcasts
// come from different goroutines.
type streamClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamClient) write(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return c.conn.WriteMessage(messageType, payload)
}

// StreamHub fans verdicts out to connected websocket clients. Each
// connected dashboard receives every verdict as it is produced; slow or
// dead clients are evicted rather than allowed to stall the broadcast.
type StreamHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}

	onCount func(n int)
}

// NewStreamHub creates an empty hub. onCount, if non-nil, is called with
// the client count after every connect and disconnect.
func NewStreamHub(onCount func(n int)) *StreamHub {
	return &StreamHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboards connect cross-origin in development setups.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*streamClient]struct{}),
		onCount: onCount,
	}
}

// Handle upgrades the request and keeps the connection registered until
// the client goes away. The read loop exists only to notice closure and
// answer pings; clients are not expected to send data.
func (h *StreamHub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	client := &streamClient{conn: conn}
	h.register(client)
	log.Debug().Str("remote", r.RemoteAddr).Int("clients", h.ClientCount()).Msg("Stream client connected")

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// Keep idle connections alive; a missed pong trips the read deadline.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := client.write(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(stop)

	h.unregister(client)
	log.Debug().Str("remote", r.RemoteAddr).Int("clients", h.ClientCount()).Msg("Stream client disconnected")
}

// Broadcast sends one verdict to every connected client. The payload is
// marshaled once; clients that fail the write are dropped.
func (h *StreamHub) Broadcast(verdict domain.TrustVerdict) {
	payload, err := json.Marshal(verdict)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal verdict for stream")
		return
	}

	for _, c := range h.snapshot() {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			h.unregister(c)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *StreamHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *StreamHub) Close() {
	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
	h.notifyCount()
}

func (h *StreamHub) snapshot() []*streamClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *StreamHub) register(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.notifyCount()
}

func (h *StreamHub) unregister(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		_ = c.conn.Close()
	}
	h.mu.Unlock()
	h.notifyCount()
}

func (h *StreamHub) notifyCount() {
	if h.onCount != nil {
		h.onCount(h.ClientCount())
	}
}
