package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mkrupp/feed/internal/infra/logging"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
)

// WebSocketConfig holds configuration parameters for the event stream endpoint.
type WebSocketConfig struct {
	// WriteTimeout bounds a single event or control frame write
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" default:"10s"`

	// PingInterval is the period of keepalive pings, it must be below PongTimeout
	PingInterval time.Duration `env:"PING_INTERVAL" default:"30s"`

	// PongTimeout is how long a peer may stay silent before it is considered dead
	PongTimeout time.Duration `env:"PONG_TIMEOUT" default:"60s"`

	// ReadLimit is the maximum size of a client message in bytes
	ReadLimit int64 `env:"READ_LIMIT" default:"512"`
}

// WebSocketTransport streams hub events to websocket clients.
// Every connection is one subscription; clients only receive, anything they send is discarded.
type WebSocketTransport struct {
	hub      *Hub
	cfg      WebSocketConfig
	upgrader websocket.Upgrader
	log      logging.Logger
}

var _ http_.HTTPTransport = (*WebSocketTransport)(nil)

// NewWebSocketTransport creates a WebSocketTransport subscribing connections to hub.
func NewWebSocketTransport(hub *Hub, cfg WebSocketConfig) *WebSocketTransport {
	return &WebSocketTransport{
		hub: hub,
		cfg: cfg,
		//nolint:exhaustruct
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.WriteTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		log: logging.GetLogger("svc.broadcast.websocket_transport"),
	}
}

// Routes registers GET /ws.
func (wt *WebSocketTransport) Routes(r chi.Router) {
	r.Get("/ws", wt.HandleEvents)
}

// HandleEvents upgrades the request and streams events until either side closes.
func (wt *WebSocketTransport) HandleEvents(w http.ResponseWriter, r *http.Request) {
	_ = wt.handleEvents(w, r)
}

func (wt *WebSocketTransport) handleEvents(w http.ResponseWriter, r *http.Request) (err error) {
	log := wt.log.With(logging.Group("ws", "remote", r.RemoteAddr))

	defer func(ctx context.Context) {
		if err != nil {
			log.WarnContext(ctx, "event stream failed", "error", err)
		} else {
			log.DebugContext(ctx, "event stream closed")
		}
	}(r.Context())

	// The upgrader writes the error response itself.
	conn, err := wt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	defer conn.Close()

	sub, err := wt.hub.Subscribe()
	if err != nil {
		_ = wt.writeClose(conn, websocket.CloseGoingAway)

		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	log.DebugContext(r.Context(), "event stream opened")

	go wt.readPump(conn, sub)

	return wt.writePump(conn, sub)
}

// readPump discards client messages and ends the subscription once the peer
// is gone or stops answering pings.
func (wt *WebSocketTransport) readPump(conn *websocket.Conn, sub *Subscription) {
	defer sub.Close()

	conn.SetReadLimit(wt.cfg.ReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wt.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wt.cfg.PongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (wt *WebSocketTransport) writePump(conn *websocket.Conn, sub *Subscription) error {
	ticker := time.NewTicker(wt.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// The hub or the reader ended the subscription.
				_ = wt.writeClose(conn, websocket.CloseGoingAway)

				return nil
			}

			_ = conn.SetWriteDeadline(time.Now().Add(wt.cfg.WriteTimeout))

			if err := conn.WriteJSON(event); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wt.cfg.WriteTimeout)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func (wt *WebSocketTransport) writeClose(conn *websocket.Conn, code int) error {
	//nolint:wrapcheck
	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(wt.cfg.WriteTimeout),
	)
}
