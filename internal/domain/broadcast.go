package domain

import (
	"encoding/json"
	"time"
)

const (
	DefaultChannel = "system"

	// UpdatedImageMessage is the summary shown for a newer system image.
	UpdatedImageMessage = "There's an updated system image."
)

// PushMessage is the payload accepted by the broadcast endpoint.
type PushMessage struct {
	Channel  string          `json:"channel" validate:"required"`
	Data     json.RawMessage `json:"data" validate:"required"`
	ExpireOn *time.Time      `json:"expire_on,omitempty"`
}

// Expired reports whether the message expiry lies strictly before now.
// A message without expiry never expires.
func (m *PushMessage) Expired(now time.Time) bool {
	return m.ExpireOn != nil && m.ExpireOn.Before(now)
}

// Broadcast is an accepted PushMessage as stored by the server.
type Broadcast struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	ExpireOn  *time.Time      `json:"expire_on,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (b *Broadcast) Expired(now time.Time) bool {
	return b.ExpireOn != nil && b.ExpireOn.Before(now)
}

type BroadcastResponse struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Delivered int       `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}
