package domain

import "time"

type Device struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Channel      string    `json:"channel"`
	ImageChannel string    `json:"image_channel"`
	Model        string    `json:"model"`
	BuildNumber  int       `json:"build_number"`
	LastActive   time.Time `json:"last_active"`
	CreatedAt    time.Time `json:"created_at"`
	IsRevoked    bool      `json:"is_revoked"`
}

type RegisterDeviceRequest struct {
	Channel      string `json:"channel"`
	ImageChannel string `json:"image_channel" validate:"required"`
	Model        string `json:"model" validate:"required"`
	BuildNumber  int    `json:"build_number" validate:"gte=0"`
}

type UpdateBuildRequest struct {
	BuildNumber int `json:"build_number" validate:"gte=0"`
}

type DeviceResponse struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"`
	ImageChannel string    `json:"image_channel"`
	Model        string    `json:"model"`
	BuildNumber  int       `json:"build_number"`
	LastActive   time.Time `json:"last_active"`
	IsRevoked    bool      `json:"is_revoked"`
}

type RegisterDeviceResponse struct {
	Device    *DeviceResponse `json:"device"`
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expires_in"`
}

// NotificationData returns the device's current system-image state.
func (d *Device) NotificationData() NotificationData {
	return NotificationData{
		Channel:     d.ImageChannel,
		Device:      d.Model,
		BuildNumber: d.BuildNumber,
	}
}

func (d *Device) Response() *DeviceResponse {
	return &DeviceResponse{
		ID:           d.ID,
		Channel:      d.Channel,
		ImageChannel: d.ImageChannel,
		Model:        d.Model,
		BuildNumber:  d.BuildNumber,
		LastActive:   d.LastActive,
		IsRevoked:    d.IsRevoked,
	}
}
