package ws

import (
	"context"
	"net/http"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/internal/websocket"
	"github.com/SphrGhfri/roomchat/pkg/logger"
	gws "github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type RateLimit struct {
	PerSecond float64
	Burst     int
}

// HandleWebSocket authenticates the request, upgrades it and runs the
// connection's pumps against the chat service.
func HandleWebSocket(
	rootCtx context.Context,
	chat port.ChatService,
	auth *Authenticator,
	connCfg websocket.ConnConfig,
	limit RateLimit,
	logg logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, err := auth.Authenticate(r)
		if err != nil {
			logg.Warnf("[WS HANDLER] Rejected connection from %s: %v", r.RemoteAddr, err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Errorf("[WS HANDLER] Upgrade error: %v", err)
			return
		}

		conn := websocket.NewConnection(wsConn, connCfg, logg)
		chat.OnConnect(rootCtx, who, conn)
		logg.WithFields(map[string]interface{}{
			"remote":         wsConn.RemoteAddr().String(),
			"participant_id": who.ID,
			"conn_id":        conn.ID,
		}).Infof("[WS HANDLER] New connection")

		limiter := newLimiter(limit)
		go conn.WritePump()
		go conn.ReadPump(func(data []byte) {
			if limiter != nil && !limiter.Allow() {
				rejectRateLimited(conn)
				return
			}
			chat.OnMessage(rootCtx, who.ID, data)
		}, func() {
			chat.OnDisconnect(rootCtx, who.ID, conn)
		})
	}
}

func newLimiter(l RateLimit) *rate.Limiter {
	if l.PerSecond <= 0 {
		return nil
	}
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(l.PerSecond), burst)
}

func rejectRateLimited(conn *websocket.Connection) {
	data, err := domain.NewErrorPayload(domain.ErrRateLimited).Encode()
	if err != nil {
		return
	}
	_ = conn.Send(data)
}
