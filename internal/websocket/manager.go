package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"system-image-push/internal/domain"

	"github.com/sirupsen/logrus"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Options tune connection keepalive and buffering.
type Options struct {
	MaxConnPerChannel int
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	MaxMessageSize    int64
	SendBuffer        int
}

// Manager tracks device connections by push channel and fans
// broadcasts out to them.
type Manager struct {
	clients           map[string]*Client
	channelIndex      map[string]map[string]bool
	clientsMutex      sync.RWMutex
	Register          chan *Client
	Unregister        chan *Client
	HandleMessage     chan *ClientMessage
	maxConnPerChannel int
	writeWait         time.Duration
	pongWait          time.Duration
	pingPeriod        time.Duration
	maxMessageSize    int64
	sendBuffer        int
	messageHandler    MessageHandler
	connectHandler    ConnectHandler
	log               *logrus.Logger
	done              chan struct{}
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

// ConnectHandler is told about every client once it is registered.
type ConnectHandler interface {
	HandleConnect(client *Client)
}

func NewManager(opts Options, log *logrus.Logger) *Manager {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	return &Manager{
		clients:           make(map[string]*Client),
		channelIndex:      make(map[string]map[string]bool),
		Register:          make(chan *Client),
		Unregister:        make(chan *Client),
		HandleMessage:     make(chan *ClientMessage),
		maxConnPerChannel: opts.MaxConnPerChannel,
		writeWait:         opts.WriteWait,
		pongWait:          opts.PongWait,
		pingPeriod:        opts.PingPeriod,
		maxMessageSize:    opts.MaxMessageSize,
		sendBuffer:        opts.SendBuffer,
		log:               log,
		done:              make(chan struct{}),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) SetConnectHandler(handler ConnectHandler) {
	m.connectHandler = handler
}

// Run serves registrations and inbound messages until ctx is done, then
// closes every remaining connection.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case client := <-m.Register:
			if m.registerClient(client) && m.connectHandler != nil {
				go m.connectHandler.HandleConnect(client)
			}

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)

		case <-ctx.Done():
			close(m.done)
			m.closeAll()
			return
		}
	}
}

// Add hands client to the run loop. It returns false once the manager
// has stopped.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) remove(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) dispatch(msg *ClientMessage) {
	select {
	case m.HandleMessage <- msg:
	case <-m.done:
	}
}

func (m *Manager) registerClient(client *Client) bool {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.channelIndex[client.Channel] == nil {
		m.channelIndex[client.Channel] = make(map[string]bool)
	}

	if m.maxConnPerChannel > 0 && len(m.channelIndex[client.Channel]) >= m.maxConnPerChannel {
		m.log.WithField("channel", client.Channel).Warn("max connections reached for channel")
		close(client.Send)
		return false
	}

	m.clients[client.ID] = client
	m.channelIndex[client.Channel][client.ID] = true

	m.log.WithFields(logrus.Fields{
		"client":  client.ID,
		"device":  client.DeviceID,
		"channel": client.Channel,
	}).Info("client registered")
	return true
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.channelIndex[client.Channel], client.ID)

		if len(m.channelIndex[client.Channel]) == 0 {
			delete(m.channelIndex, client.Channel)
		}

		close(client.Send)
		m.log.WithField("client", client.ID).Info("client unregistered")
	}
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.channelIndex = make(map[string]map[string]bool)
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.log.WithError(err).Debug("error unmarshaling message")
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			m.log.WithError(err).Warn("error handling message")
		}
	}
}

// BroadcastToChannel queues message for every client on channel and
// returns how many accepted it. Clients whose buffer is full are dropped.
func (m *Manager) BroadcastToChannel(channel string, message *Message) (int, error) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return 0, err
	}

	var slow []*Client
	sent := 0

	m.clientsMutex.RLock()
	for clientID := range m.channelIndex[channel] {
		client := m.clients[clientID]
		select {
		case client.Send <- messageBytes:
			sent++
		default:
			m.log.WithField("client", clientID).Warn("send buffer full, closing connection")
			slow = append(slow, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range slow {
		go m.remove(client)
	}

	return sent, nil
}

// PublishBroadcast wraps b in a broadcast envelope for its channel.
func (m *Manager) PublishBroadcast(b *domain.Broadcast) (int, error) {
	msg, err := NewBroadcastMessage(b)
	if err != nil {
		return 0, err
	}
	return m.BroadcastToChannel(b.Channel, msg)
}

func NewBroadcastMessage(b *domain.Broadcast) (*Message, error) {
	return NewMessage(TypeBroadcast, &BroadcastPayload{
		ID:       b.ID,
		Channel:  b.Channel,
		Data:     b.Data,
		ExpireOn: b.ExpireOn,
	})
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.log.WithField("client", clientID).Warn("send buffer full")
	}

	return nil
}

func (m *Manager) ChannelConnections(channel string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.channelIndex[channel])
}
