// Package app wires repositories, services, the websocket manager and
// the HTTP routes of the push server.
package app

import (
	"context"
	"net/http"
	"time"

	"system-image-push/internal/config"
	"system-image-push/internal/handler"
	"system-image-push/internal/middleware"
	"system-image-push/internal/repository"
	"system-image-push/internal/service"
	"system-image-push/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type App struct {
	Config     *config.Config
	Router     *mux.Router
	Manager    *websocket.Manager
	Broadcasts *service.BroadcastService
	Devices    *service.DeviceService
	Logger     *logrus.Logger
}

func New(cfg *config.Config, deviceRepo repository.DeviceRepository, broadcastRepo repository.BroadcastRepository, log *logrus.Logger) *App {
	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerChannel: cfg.WebSocket.MaxConnPerChannel,
		WriteWait:         cfg.WebSocket.WriteWait,
		PongWait:          cfg.WebSocket.PongWait,
		PingPeriod:        cfg.WebSocket.PingPeriod,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		SendBuffer:        cfg.WebSocket.ClientSendBuffer,
	}, log)

	broadcastService := service.NewBroadcastService(broadcastRepo, wsManager, log)
	deviceService := service.NewDeviceService(deviceRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.Broadcast.DefaultChannel)

	wsMessageHandler := handler.NewWebSocketMessageHandler(wsManager, broadcastService, log)
	wsManager.SetMessageHandler(wsMessageHandler)
	wsManager.SetConnectHandler(wsMessageHandler)

	broadcastHandler := handler.NewBroadcastHandler(broadcastService, cfg.Broadcast.DefaultChannel)
	deviceHandler := handler.NewDeviceHandler(deviceService)
	wsHandler := handler.NewWebSocketHandler(wsManager, deviceService, cfg.JWT.Secret,
		cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, log)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	broadcast := r.PathPrefix("/broadcast").Subrouter()
	broadcast.Use(middleware.BroadcastAuthMiddleware(cfg.Broadcast.KeyHash))
	broadcast.HandleFunc("", broadcastHandler.Broadcast).Methods("POST", "OPTIONS")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/devices/register", deviceHandler.Register).Methods("POST", "OPTIONS")

	channels := api.PathPrefix("/channels").Subrouter()
	channels.Use(middleware.BroadcastAuthMiddleware(cfg.Broadcast.KeyHash))
	channels.HandleFunc("/{channel}/devices", deviceHandler.List).Methods("GET", "OPTIONS")

	protected := api.PathPrefix("/devices/me").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	protected.HandleFunc("", deviceHandler.GetMe).Methods("GET", "OPTIONS")
	protected.HandleFunc("", deviceHandler.RevokeMe).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/build", deviceHandler.UpdateBuild).Methods("PUT", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", handler.Health).Methods("GET")

	return &App{
		Config:     cfg,
		Router:     r,
		Manager:    wsManager,
		Broadcasts: broadcastService,
		Devices:    deviceService,
		Logger:     log,
	}
}

// Run drives the websocket manager and, when pruneEvery is positive,
// drops expired broadcasts periodically. It returns when ctx is done.
func (a *App) Run(ctx context.Context, pruneEvery time.Duration) {
	if pruneEvery > 0 {
		go a.pruneLoop(ctx, pruneEvery)
	}
	a.Manager.Run(ctx)
}

func (a *App) pruneLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.Broadcasts.PruneExpired(); err != nil {
				a.Logger.WithError(err).Warn("failed to prune expired broadcasts")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) Handler() http.Handler {
	return a.Router
}
