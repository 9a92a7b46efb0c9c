package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

var newline = []byte{'\n'}

// Client is one device connection held by the Manager. Send is closed by
// the Manager when the client is dropped.
type Client struct {
	ID       string
	DeviceID string
	Channel  string
	Conn     *websocket.Conn
	Manager  *Manager
	Send     chan []byte
}

func NewClient(id, deviceID, channel string, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:       id,
		DeviceID: deviceID,
		Channel:  channel,
		Conn:     conn,
		Manager:  manager,
		Send:     make(chan []byte, manager.sendBuffer),
	}
}

// Serve pumps the connection until either side gives up. It blocks on
// reads and writes from a second goroutine.
func (c *Client) Serve() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.Manager.remove(c)
		c.Conn.Close()
	}()

	m := c.Manager
	if m.maxMessageSize > 0 {
		c.Conn.SetReadLimit(m.maxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(m.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(m.pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.log.WithError(err).WithField("client", c.ID).Warn("websocket read error")
			}
			return
		}
		m.dispatch(&ClientMessage{Client: c, Message: data})
	}
}

func (c *Client) writeLoop() {
	keepalive := time.NewTicker(c.Manager.pingPeriod)
	defer func() {
		keepalive.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case first, ok := <-c.Send:
			if !ok {
				c.Conn.WriteControl(websocket.CloseMessage, []byte{}, c.deadline())
				return
			}
			if err := c.writeBatch(first); err != nil {
				return
			}

		case <-keepalive.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, c.deadline()); err != nil {
				return
			}
		}
	}
}

// writeBatch sends first plus whatever is already queued as one frame,
// one envelope per line.
func (c *Client) writeBatch(first []byte) error {
	c.Conn.SetWriteDeadline(c.deadline())
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(first)

	for queued := len(c.Send); queued > 0; queued-- {
		next, ok := <-c.Send
		if !ok {
			break
		}
		w.Write(newline)
		w.Write(next)
	}
	return w.Close()
}

func (c *Client) deadline() time.Time {
	return time.Now().Add(c.Manager.writeWait)
}
