package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/riaz37/groupbuy-realtime/internal/gateway"
	"github.com/riaz37/groupbuy-realtime/internal/router"
	"github.com/riaz37/groupbuy-realtime/internal/server/middleware"
	"github.com/riaz37/groupbuy-realtime/pkg/config"
	"github.com/riaz37/groupbuy-realtime/pkg/state"
	"github.com/riaz37/groupbuy-realtime/pkg/state/statemanager"
	"github.com/riaz37/groupbuy-realtime/pkg/transport"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.EventRouter
	lifecycle    *gateway.Lifecycle
	wg           sync.WaitGroup
	http         *http.Server
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	eventRouter := router.NewEventRouter(logger, stateManager)
	verifier := gateway.NewTokenVerifier(logger, cfg.Server.Auth.JWTSecret)
	lifecycle := gateway.NewLifecycle(logger, stateManager, eventRouter, verifier)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		eventRouter:  eventRouter,
		lifecycle:    lifecycle,
		config:       cfg,
		ctx:          rootCtx,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewConnectionLimiter(
				logger,
				stateManager.ConnectionCount,
				app.config.Server.ConnectionLimit,
			),
		),
	)
	mux.HandleFunc("/health", app.healthHandler)
	mux.HandleFunc("/stats", app.statsHandler)

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Router exposes the emit API to the surrounding application's domain
// handlers (orders, payments, deliveries, group orders, notifications).
func (a *App) Router() *router.EventRouter {
	return a.eventRouter
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	var ip string
	if reqMeta != nil {
		ip = reqMeta.IP
	}
	connLogger := a.logger.With(slog.String("remoteAddr", ip))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.lifecycle.HandleMessage,
		a.lifecycle.HandleDisconnect,
		a.logger,
	)

	// The connection enters the presence layer in the Connecting state; no
	// rooms, no identity, until the in-band handshake succeeds.
	if _, err := a.stateManager.RegisterConnection(conn, ip); err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		wsConn.Close(websocket.StatusInternalError, "registration failed")
		return
	}

	connLogger.Info("Connection accepted, awaiting handshake", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.stateManager.AllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
