package handler

import (
	"errors"
	"net/http"

	"system-image-push/internal/middleware"
	"system-image-push/internal/service"
	"system-image-push/internal/websocket"
	"system-image-push/pkg/jwt"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type WebSocketHandler struct {
	manager       *websocket.Manager
	deviceService *service.DeviceService
	jwtSecret     string
	upgrader      ws.Upgrader
	log           *logrus.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, deviceService *service.DeviceService, jwtSecret string, readBuffer, writeBuffer int, log *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:       manager,
		deviceService: deviceService,
		jwtSecret:     jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

// HandleConnection upgrades an authenticated device to its push
// connection.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}

	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		h.log.WithError(err).Debug("websocket token validation failed")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	device, err := h.deviceService.Connect(claims.DeviceID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDeviceRevoked):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, service.ErrDeviceNotFound):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		default:
			http.Error(w, "device lookup failed", http.StatusInternalServerError)
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("failed to upgrade websocket connection")
		return
	}

	client := websocket.NewClient(uuid.New().String(), device.ID, device.Channel, conn, h.manager)
	if !h.manager.Add(client) {
		conn.Close()
		return
	}

	go client.Serve()
}

// WebSocketMessageHandler answers device traffic and replays the pending
// broadcast to devices as they connect.
type WebSocketMessageHandler struct {
	manager          *websocket.Manager
	broadcastService *service.BroadcastService
	log              *logrus.Logger
}

func NewWebSocketMessageHandler(manager *websocket.Manager, broadcastService *service.BroadcastService, log *logrus.Logger) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		manager:          manager,
		broadcastService: broadcastService,
		log:              log,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeAck:
		var ack websocket.AckPayload
		if err := msg.UnmarshalPayload(&ack); err != nil {
			return err
		}
		h.log.WithFields(logrus.Fields{
			"device":    client.DeviceID,
			"broadcast": ack.MessageID,
			"success":   ack.Success,
		}).Debug("broadcast acknowledged")
		return nil

	case websocket.TypePing:
		pong, err := websocket.NewMessage(websocket.TypePong, nil)
		if err != nil {
			return err
		}
		return h.manager.SendToClient(client.ID, pong)

	default:
		h.log.WithField("type", msg.Type).Debug("unknown message type")
	}

	return nil
}

func (h *WebSocketMessageHandler) HandleConnect(client *websocket.Client) {
	b, err := h.broadcastService.Pending(client.Channel)
	if err != nil {
		h.log.WithError(err).WithField("channel", client.Channel).Warn("failed to load pending broadcast")
		return
	}
	if b == nil {
		return
	}

	msg, err := websocket.NewBroadcastMessage(b)
	if err != nil {
		h.log.WithError(err).Warn("failed to build broadcast message")
		return
	}
	if err := h.manager.SendToClient(client.ID, msg); err != nil {
		h.log.WithError(err).WithField("client", client.ID).Warn("failed to replay pending broadcast")
	}
}
