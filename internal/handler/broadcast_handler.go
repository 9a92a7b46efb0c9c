package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"system-image-push/internal/domain"
	"system-image-push/internal/service"
	"system-image-push/pkg/response"

	"github.com/go-playground/validator/v10"
)

type BroadcastHandler struct {
	service        *service.BroadcastService
	validate       *validator.Validate
	defaultChannel string
}

func NewBroadcastHandler(service *service.BroadcastService, defaultChannel string) *BroadcastHandler {
	return &BroadcastHandler{
		service:        service,
		validate:       validator.New(),
		defaultChannel: defaultChannel,
	}
}

// Broadcast accepts a push message for every device on its channel.
// 200 means accepted; 400 means malformed or already expired.
func (h *BroadcastHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var msg domain.PushMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}

	if msg.Channel == "" {
		msg.Channel = h.defaultChannel
	}

	if err := h.validate.Struct(msg); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	resp, err := h.service.Submit(&msg)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExpired):
			response.BadRequest(w, "expired")
		case errors.Is(err, service.ErrInvalidPayload):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "failed to accept broadcast")
		}
		return
	}

	response.OK(w, resp)
}
