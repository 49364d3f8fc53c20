package ws

import (
	"context"
	"net/http"

	"github.com/SphrGhfri/roomchat/internal/port"
	"github.com/SphrGhfri/roomchat/internal/websocket"
	"github.com/SphrGhfri/roomchat/pkg/logger"
)

type WSConfig struct {
	ChatService   port.ChatService
	Authenticator *Authenticator
	Conn          websocket.ConnConfig
	RateLimit     RateLimit
	// Health reports readiness of backing services; nil means always healthy.
	Health func(ctx context.Context) error
	// Stats adds runtime counters to the health response.
	Stats   func() map[string]interface{}
	RootCtx context.Context
}

func SetupWebSocketRoutes(cfg WSConfig) http.Handler {
	mux := http.NewServeMux()
	log := logger.FromContext(cfg.RootCtx).WithModule("websocket")
	auth := cfg.Authenticator
	if auth == nil {
		auth = NewAuthenticator("")
	}

	mux.HandleFunc("GET /ws", HandleWebSocket(cfg.RootCtx, cfg.ChatService, auth, cfg.Conn, cfg.RateLimit, log))
	mux.HandleFunc("GET /api/rooms", HandleListRooms(cfg.ChatService))
	mux.HandleFunc("POST /api/rooms", HandleCreateRoom(cfg.ChatService, auth, log))
	mux.HandleFunc("DELETE /api/rooms/{type}/{id}", HandleDeleteRoom(cfg.ChatService, auth))
	mux.HandleFunc("DELETE /api/participants/{id}", HandleKick(cfg.ChatService, auth, log))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
				return
			}
		}
		body := map[string]interface{}{}
		if cfg.Stats != nil {
			body = cfg.Stats()
		}
		body["status"] = "ok"
		writeJSON(w, http.StatusOK, body)
	})
	return mux
}
