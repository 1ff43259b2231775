package signaling

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openmeet/roomrelay/internal/config"
	"github.com/openmeet/roomrelay/internal/origin"
	"github.com/openmeet/roomrelay/internal/ratelimit"
	"github.com/openmeet/roomrelay/internal/room"
)

// WebSocketServer upgrades HTTP requests into signaling connections.
//
// Each accepted connection gets a transport-assigned session id, a bounded
// outbound queue, and a token bucket capping its inbound message rate.
type WebSocketServer struct {
	log *slog.Logger
	cfg config.Config
	hub *Hub

	upgrader websocket.Upgrader
}

func NewWebSocketServer(cfg config.Config, logger *slog.Logger, hub *Hub) *WebSocketServer {
	return &WebSocketServer{
		log: logger,
		cfg: cfg,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				header := r.Header.Get("Origin")
				if header == "" {
					// Non-browser clients send no Origin; the hardening here
					// targets cross-site browser connections only.
					return true
				}
				normalized, ok := origin.Normalize(header)
				return ok && origin.Allowed(normalized, cfg.AllowedOrigins)
			},
		},
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error (including origin rejections).
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	sess := room.NewSession(uuid.NewString(), s.cfg.SendBuffer)
	s.hub.HandleConnect(sess)

	rate := int64(s.cfg.MaxSignalingMessagesPerSecond)
	c := &client{
		hub:     s.hub,
		conn:    conn,
		sess:    sess,
		log:     s.log,
		limiter: ratelimit.NewTokenBucket(nil, rate, rate),

		maxMessageBytes: s.cfg.MaxSignalingMessageBytes,
		pongTimeout:     s.cfg.PongTimeout,
		pingInterval:    s.cfg.PingInterval,
	}

	go c.writeLoop()
	go c.readLoop()
}
