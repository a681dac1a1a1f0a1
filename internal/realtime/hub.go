package realtime

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageSize = 8192
	defaultSendBuffer     = 256
)

// HubConfig tunes the websocket transport.
type HubConfig struct {
	// AllowedOrigins lists browser origins allowed to open a socket. Empty
	// or "*" allows any origin.
	AllowedOrigins []string
	MaxMessageSize int64
	SendBuffer     int
}

// Hub owns the live websocket connections. It assigns connection ids,
// forwards lifecycle signals to the Ingress and implements Sender for the
// Dispatcher.
type Hub struct {
	mu       sync.RWMutex
	conns    map[ConnID]*Conn
	closed   bool
	ingress  *Ingress
	upgrader websocket.Upgrader
	cfg      HubConfig
	logger   zerolog.Logger
}

// Conn wraps one websocket connection and its buffered send queue.
type Conn struct {
	id   ConnID
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
}

// NewHub returns a hub that reports lifecycle signals to ingress.
func NewHub(ingress *Ingress, cfg HubConfig, logger zerolog.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	h := &Hub{
		conns:   make(map[ConnID]*Conn),
		ingress: ingress,
		cfg:     cfg,
		logger:  logger.With().Str("component", "socket_hub").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	conn := &Conn{
		id:   ConnID(uuid.NewString()),
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	if !h.register(conn) {
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = ws.Close()
		return
	}
	h.ingress.OnConnect(conn.id)

	go conn.writePump()
	go conn.readPump()
}

// Send queues frame for conn without blocking. It returns false when the
// connection is gone or its queue is full.
func (h *Hub) Send(id ConnID, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.conns[id]
	if !ok {
		return false
	}
	select {
	case conn.send <- frame:
		return true
	default:
		return false
	}
}

// Count returns the number of open connections, authenticated or not.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close refuses new connections and closes every open one. Each
// connection's read loop then runs its normal disconnect path.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.ws.Close()
	}
}

func (h *Hub) register(conn *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn.id] = conn
	return true
}

func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.id]; ok {
		delete(h.conns, conn.id)
		close(conn.send)
	}
}

// ID returns the transport-assigned connection id.
func (c *Conn) ID() ConnID {
	return c.id
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.ingress.OnDisconnect(c.id)
		c.hub.unregister(c)
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug().Err(err).Str("conn", string(c.id)).Msg("read failed")
			}
			return
		}
		c.handleFrame(payload)
	}
}

func (c *Conn) handleFrame(payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		c.hub.logger.Debug().Err(err).Str("conn", string(c.id)).Msg("ignoring malformed frame")
		return
	}
	switch env.Event {
	case EventAuthenticate:
		var auth AuthenticatePayload
		if err := decodeData(env.Data, &auth); err != nil {
			c.hub.logger.Debug().Err(err).Str("conn", string(c.id)).Msg("ignoring malformed authenticate")
			return
		}
		c.hub.ingress.OnAuthenticate(c.id, UserID(auth.UserID))
	case EventPing:
		if frame, err := EncodeEvent(EventPong, nil); err == nil {
			c.hub.Send(c.id, frame)
		}
	default:
		c.hub.logger.Debug().Str("conn", string(c.id)).Str("event", env.Event).Msg("unhandled event")
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
