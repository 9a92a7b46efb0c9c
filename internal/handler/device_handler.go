package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"system-image-push/internal/domain"
	"system-image-push/internal/middleware"
	"system-image-push/internal/service"
	"system-image-push/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type DeviceHandler struct {
	service  *service.DeviceService
	validate *validator.Validate
}

func NewDeviceHandler(service *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	resp, err := h.service.Register(&req)
	if err != nil {
		response.InternalError(w, "Failed to register device")
		return
	}

	response.Created(w, resp)
}

func (h *DeviceHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	device, err := h.service.Get(middleware.GetDeviceID(r))
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	response.OK(w, device.Response())
}

func (h *DeviceHandler) UpdateBuild(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	device, err := h.service.UpdateBuild(middleware.GetDeviceID(r), req.BuildNumber)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	response.OK(w, device)
}

func (h *DeviceHandler) RevokeMe(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Revoke(middleware.GetDeviceID(r)); err != nil {
		writeDeviceError(w, err)
		return
	}

	response.Message(w, http.StatusOK, "Device revoked successfully")
}

// List shows the live devices of a channel.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	if channel == "" {
		response.BadRequest(w, "Channel is required")
		return
	}

	devices, err := h.service.List(channel)
	if err != nil {
		response.InternalError(w, "Failed to list devices")
		return
	}

	response.OK(w, devices)
}

func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, service.ErrDeviceRevoked):
		response.Forbidden(w, err.Error())
	default:
		response.InternalError(w, "Device operation failed")
	}
}
