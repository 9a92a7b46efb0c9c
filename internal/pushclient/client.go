// Package pushclient is the device side of the push connection. It keeps
// a websocket open to the server, acknowledges broadcasts and hands them
// to a BroadcastHandler.
package pushclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"system-image-push/internal/websocket"

	"github.com/cenkalti/backoff/v4"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrRejected is returned by Run when the server refuses the device's
// credentials. Redialing cannot fix that.
var ErrRejected = errors.New("push server rejected the device")

type BroadcastHandler interface {
	HandleBroadcast(b *websocket.BroadcastPayload) error
}

type Options struct {
	ServerURL  string
	Token      string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	WriteWait  time.Duration
	// PongWait is how long the connection may stay silent before it is
	// considered dead. It must exceed the server's ping period.
	PongWait time.Duration
	// Connectivity reports whether the network is usable. The client only
	// dials while online and drops its connection on going offline. Nil
	// means always online.
	Connectivity <-chan bool
}

type Client struct {
	opts    Options
	handler BroadcastHandler
	dialer  *ws.Dialer
	net     *netState
	log     *logrus.Logger
}

func New(opts Options, handler BroadcastHandler, log *logrus.Logger) *Client {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 90 * time.Second
	}

	return &Client{
		opts:    opts,
		handler: handler,
		net:     newNetState(opts.Connectivity == nil),
		dialer: &ws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		log: log,
	}
}

// Run keeps the device connected until ctx is done, redialing with
// exponential backoff whenever the connection drops. It returns
// ctx.Err() on cancellation or ErrRejected when the token is refused.
func (c *Client) Run(ctx context.Context) error {
	endpoint, err := WebSocketURL(c.opts.ServerURL, c.opts.Token)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.MinBackoff
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	if c.opts.Connectivity != nil {
		go c.net.watch(ctx, c.opts.Connectivity)
	}

	for {
		if err := c.net.waitOnline(ctx); err != nil {
			return err
		}

		conn, err := c.dial(ctx, endpoint)
		if errors.Is(err, ErrRejected) {
			return err
		}
		if err == nil {
			b.Reset()
			c.log.Info("push connection established")
			err = c.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if online, _ := c.net.state(); !online {
			b.Reset()
			c.log.Info("network offline, waiting to reconnect")
			continue
		}

		wait := b.NextBackOff()
		c.log.WithError(err).WithField("retry_in", wait).Warn("push connection lost")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (c *Client) dial(ctx context.Context, endpoint string) (*ws.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial push server: %w", err)
	}
	return conn, nil
}

// serve reads until the connection fails, goes silent for PongWait, the
// network drops or ctx is done. All writes happen on this goroutine,
// including pong replies.
func (c *Client) serve(ctx context.Context, conn *ws.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go c.closeWhenDone(ctx, conn, stop)
	defer conn.Close()

	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		err := conn.WriteControl(ws.PongMessage, []byte(data), time.Now().Add(c.opts.WriteWait))
		if errors.Is(err, ws.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		_, r, err := conn.NextReader()
		if err != nil {
			return err
		}

		dec := json.NewDecoder(r)
		for {
			var msg websocket.Message
			if err := dec.Decode(&msg); err != nil {
				if err != io.EOF {
					c.log.WithError(err).Warn("malformed push frame")
				}
				break
			}
			if err := c.handle(conn, &msg); err != nil {
				return err
			}
		}
	}
}

func (c *Client) closeWhenDone(ctx context.Context, conn *ws.Conn, stop <-chan struct{}) {
	for {
		online, changed := c.net.state()
		if !online {
			conn.Close()
			return
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-stop:
			return
		case <-changed:
		}
	}
}

func (c *Client) handle(conn *ws.Conn, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypePing:
		return c.send(conn, websocket.TypePong, nil)

	case websocket.TypeBroadcast:
		var payload websocket.BroadcastPayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			c.log.WithError(err).Warn("invalid broadcast payload")
			return nil
		}

		ack := &websocket.AckPayload{MessageID: payload.ID, Success: true}
		if err := c.handler.HandleBroadcast(&payload); err != nil {
			c.log.WithError(err).WithField("broadcast", payload.ID).Warn("broadcast not handled")
			ack.Success = false
			ack.Error = err.Error()
		}
		return c.send(conn, websocket.TypeAck, ack)

	default:
		c.log.WithField("type", msg.Type).Debug("ignoring message")
		return nil
	}
}

func (c *Client) send(conn *ws.Conn, t websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(t, payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return conn.WriteJSON(msg)
}

// WebSocketURL turns the server's HTTP base URL into its push endpoint.
func WebSocketURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
