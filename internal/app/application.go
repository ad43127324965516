package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"codepair/internal/api"
	"codepair/internal/config"
	"codepair/internal/hub"
	"codepair/internal/router"
	"codepair/internal/session"
	"codepair/internal/store"
	"codepair/internal/websocket"
	"codepair/pkg/database"
	"codepair/pkg/interfaces"
)

// Application coordinates all system components.
type Application struct {
	config *config.Config
	logger *zap.Logger

	store      interfaces.SessionStore
	registry   *websocket.Registry
	directory  *session.Manager
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	listener net.Listener
	errCh    chan error
	stopOnce sync.Once
}

// NewApplication builds every component in dependency order:
// Store → Registry → Directory → Router → Hub → WebSocket/API → HTTP.
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sessionStore, err := store.New(storeConfig(cfg.Store), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	logger.Info("session store ready", zap.String("backend", cfg.Store.Backend))

	registry := websocket.NewRegistry()
	directory := session.NewManager(sessionStore, registry, logger)

	eventRouter := router.NewRouter(cfg.WebSocket.EventsPerMinute)
	realtimeHub := hub.NewHub(registry, directory, eventRouter, hub.Config{
		QueueSize:    cfg.Hub.QueueSize,
		StoreTimeout: cfg.Hub.StoreTimeout,
	}, logger)

	wsHandler := websocket.NewHandler(registry, realtimeHub, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, logger)

	apiServer := api.NewServer(directory, registry, wsHandler, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		ErrorLog:     zap.NewStdLog(logger.Named("http")),
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		store:      sessionStore,
		registry:   registry,
		directory:  directory,
		hub:        realtimeHub,
		apiServer:  apiServer,
		httpServer: httpServer,
		errCh:      make(chan error, 1),
	}, nil
}

func storeConfig(cfg *config.StoreConfig) store.Config {
	sqlite := database.DefaultConfig()
	sqlite.DatabasePath = cfg.Path
	sqlite.BusyTimeout = cfg.Timeout

	return store.Config{
		Backend: store.Backend(cfg.Backend),
		SQLite:  sqlite,
		Redis: store.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			KeyPrefix:   cfg.KeyPrefix,
			DialTimeout: cfg.Timeout,
		},
	}
}

// Start runs the hub and begins serving. It returns once the listener is
// bound; later serve failures are reported on Err.
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start realtime hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	app.logger.Info("codepair listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Err reports a failure of the running HTTP server.
func (app *Application) Err() <-chan error {
	return app.errCh
}

// Stop shuts down in reverse dependency order: HTTP, live connections, hub,
// store. Safe to call more than once.
func (app *Application) Stop(ctx context.Context) error {
	var errs []error
	app.stopOnce.Do(func() {
		app.logger.Info("shutting down codepair")

		if app.listener != nil {
			if err := app.httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}

		// Hijacked websocket connections are not covered by Shutdown.
		app.registry.CloseAll()

		if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
			errs = append(errs, fmt.Errorf("hub stop: %w", err))
		}

		if err := app.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}

		app.logger.Info("codepair shutdown complete")
	})
	return errors.Join(errs...)
}

// Addr returns the bound listen address, or the configured one before Start.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the full HTTP surface for in-process tests.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
