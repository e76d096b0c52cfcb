package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"healthdom/internal/api"
	"healthdom/internal/config"
	"healthdom/internal/database"
	"healthdom/internal/mail"
	"healthdom/internal/notify"
	"healthdom/internal/otp"
	"healthdom/internal/session"
	"healthdom/internal/store"
	"healthdom/internal/websocket"
	"healthdom/pkg/interfaces"
)

// Application owns every component and their lifecycle. Components are
// constructed in dependency order: store -> database -> managers ->
// registry -> dispatcher -> handlers -> HTTP server.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	kvstore    interfaces.KeyValue
	redisStore *store.Redis
	registry   *websocket.Registry
	httpServer *http.Server
}

// New assembles the application. An unreachable key-value store is a fatal
// startup condition: without it no session or OTP can exist.
func New(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var (
		kvstore    interfaces.KeyValue
		redisStore *store.Redis
	)
	if cfg.Redis.Addr == "" {
		logger.Warn("no redis address configured, using in-memory store; sessions will not survive restarts")
		kvstore = store.NewMemory()
	} else {
		redisStore = store.NewRedis(store.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			OpTimeout: cfg.Redis.OpTimeout,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			return nil, fmt.Errorf("key-value store unreachable: %w", err)
		}
		kvstore = redisStore
	}

	db, err := database.Init(cfg.Database.Path, cfg.Database.LogMode)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	sessions := session.NewManager(kvstore, cfg.Session.TTL, cfg.Session.Sliding, logger)
	otps := otp.NewManager(kvstore, cfg.OTP.TTL, logger)
	mailer := mail.NewMailer(cfg.Mailer.URL, cfg.Mailer.APIKey, cfg.Mailer.From, logger)

	registry := websocket.NewRegistry(logger)
	dispatcher := notify.NewDispatcher(registry, logger)

	wsHandler := websocket.NewHandler(registry, sessions, database.NewUsers(db), websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	}, logger)

	server := api.NewServer(cfg.Server.Mode, db, sessions, otps, mailer, dispatcher, registry, kvstore, wsHandler, logger)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:     server.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket connections.
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		kvstore:    kvstore,
		redisStore: redisStore,
		registry:   registry,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. It returns once the listener is up or startup
// failed.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting healthdom", zap.String("addr", app.httpServer.Addr))

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("healthdom started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: stop accepting requests,
// drop live connections, release the store client.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down healthdom")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("http shutdown error", zap.Error(err))
	}

	app.registry.CloseAll()

	if app.redisStore != nil {
		if err := app.redisStore.Close(); err != nil {
			app.logger.Warn("store close error", zap.Error(err))
		}
	}

	app.logger.Info("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
