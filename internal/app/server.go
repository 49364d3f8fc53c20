package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/SphrGhfri/roomchat/api/ws"
	"github.com/SphrGhfri/roomchat/config"
	"github.com/SphrGhfri/roomchat/internal/direct"
	"github.com/SphrGhfri/roomchat/internal/nats"
	"github.com/SphrGhfri/roomchat/internal/redis"
	"github.com/SphrGhfri/roomchat/internal/room"
	"github.com/SphrGhfri/roomchat/internal/store"
	"github.com/SphrGhfri/roomchat/internal/websocket"
	"github.com/SphrGhfri/roomchat/pkg/logger"
	"github.com/SphrGhfri/roomchat/service"
	"golang.org/x/sync/errgroup"
)

// App represents the main application structure holding all dependencies
type App struct {
	cfg         config.Config
	logger      logger.Logger
	store       *store.Store
	natsClient  *nats.NATSClient
	redisClient *redis.RedisClient
	cache       *redis.PayloadCache
	hub         *websocket.Hub
	persister   *service.Persister
	chatService *service.ChatService
	httpServer  *http.Server
	rootCtx     context.Context
	cancel      context.CancelFunc
}

// NewApp opens the store and the optional redis and NATS connections and
// wires the chat core on top of them.
func NewApp(cfg config.Config) (*App, error) {
	baseLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFile)
	rootCtx := logger.NewContext(context.Background(), baseLogger)
	return newApp(rootCtx, cfg)
}

func newApp(ctx context.Context, cfg config.Config) (*App, error) {
	rootCtx, rootCancel := context.WithCancel(ctx)
	log := logger.FromContext(rootCtx).WithModule("app")
	log.Infof("Initializing application components...")

	a := &App{cfg: cfg, logger: log, rootCtx: rootCtx, cancel: rootCancel}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		a.closeBackends()
		return nil, fmt.Errorf("failed to open message store: %w", err)
	}
	a.store = st

	deps := service.Deps{
		Store:   st,
		History: service.HistoryConfig{Limit: cfg.HistoryLimit, CacheTTL: cfg.CacheTTL},
		Logger:  logger.FromContext(rootCtx),
	}

	if cfg.RedisURL != "" {
		redisClient, err := redis.NewRedisClient(rootCtx, cfg.RedisURL)
		if err != nil {
			a.closeBackends()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.redisClient = redisClient
		// presence left over from a previous run is stale
		if err := redisClient.ClearActiveUsers(rootCtx); err != nil {
			log.Warnf("Failed to clear active users: %v", err)
		}
		deps.Presence = redisClient
		deps.NameStore = redisClient
		a.cache = redis.NewPayloadCache(redisClient.Client())
		deps.Cache = a.cache
	} else {
		log.Warnf("No redis_url configured, presence and history cache are process local")
	}

	if cfg.NATSURL != "" {
		natsClient, err := nats.NewNATSClient(cfg.NATSURL)
		if err != nil {
			a.closeBackends()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsClient = natsClient
		deps.Events = natsClient
	}

	a.hub = websocket.NewHub(logger.FromContext(rootCtx))
	a.persister = service.NewPersister(st, service.PersisterConfig{
		Workers:      cfg.Persist.Workers,
		QueueSize:    cfg.Persist.QueueSize,
		WriteTimeout: cfg.Persist.WriteTimeout,
	}, logger.FromContext(rootCtx))

	deps.Connections = a.hub
	deps.Rooms = room.NewRegistry(logger.FromContext(rootCtx), room.WithDefaultRooms(cfg.DefaultRooms...))
	deps.Directs = direct.NewRegistry(logger.FromContext(rootCtx))
	deps.Sink = a.persister
	a.chatService = service.NewChatService(deps)

	if cfg.JWTSecret == "" {
		log.Warnf("No jwt_secret configured, identities are taken from query parameters")
	}
	a.httpServer = &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: ws.SetupWebSocketRoutes(ws.WSConfig{
			ChatService:   a.chatService,
			Authenticator: ws.NewAuthenticator(cfg.JWTSecret),
			Conn: websocket.ConnConfig{
				SendQueueSize:   cfg.SendQueueSize,
				PingInterval:    cfg.PingInterval,
				PongWait:        cfg.PongWait,
				WriteWait:       cfg.WriteWait,
				MaxMessageBytes: cfg.MaxMessageBytes,
			},
			RateLimit: ws.RateLimit{PerSecond: cfg.RateLimit.PerSecond, Burst: cfg.RateLimit.Burst},
			Health:    a.Health,
			Stats:     a.Stats,
			RootCtx:   rootCtx,
		}),
	}

	log.Infof("Application initialized successfully")
	return a, nil
}

// Health pings every configured backend.
func (a *App) Health(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if a.natsClient != nil && !a.natsClient.Conn.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

// Stats reports queue depth, live connections and cache counters.
func (a *App) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"persist_pending": a.persister.Pending(),
		"connections":     len(a.hub.Connected()),
	}
	if a.cache != nil {
		stats["cache"] = a.cache.Stats()
	}
	return stats
}

func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Start serves HTTP until the server is shut down or fails.
func (a *App) Start() error {
	log := a.logger.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
	})
	log.Infof("Starting application server")

	a.persister.Start()

	g, ctx := errgroup.WithContext(a.rootCtx)
	g.Go(func() error {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Debugf("Root context closed, pending persisted messages: %d", a.persister.Pending())
		return nil
	})

	err := g.Wait()
	if err != nil {
		log.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Errorf("HTTP server failed")
	}
	return err
}

// Stop shuts the server down and drains queued writes before closing the backends.
func (a *App) Stop(ctx context.Context) error {
	log := a.logger
	log.Infof("Initiating graceful shutdown")

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.hub.Close()
	if err := a.persister.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.cancel()
	a.closeBackends()

	if err := errors.Join(errs...); err != nil {
		log.Errorf("Shutdown finished with errors: %v", err)
		return err
	}
	log.Infof("Shutdown completed successfully")
	return nil
}

func (a *App) closeBackends() {
	if a.natsClient != nil {
		a.logger.Infof("Closing NATS connection")
		a.natsClient.Close()
	}
	if a.redisClient != nil {
		a.logger.Infof("Closing Redis connection")
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("Redis close: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warnf("Store close: %v", err)
		}
	}
	a.cancel()
}
