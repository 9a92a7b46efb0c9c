package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeBroadcast MessageType = "broadcast"
	TypeAck       MessageType = "ack"
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
)

// Message is the envelope exchanged with devices. Several envelopes may
// share one websocket frame, separated by newlines.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type BroadcastPayload struct {
	ID       string          `json:"id"`
	Channel  string          `json:"channel"`
	Data     json.RawMessage `json:"data"`
	ExpireOn *time.Time      `json:"expire_on,omitempty"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
