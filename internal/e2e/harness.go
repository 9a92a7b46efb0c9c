// Package e2e runs the push server and a device in-process so acceptance
// tests can send broadcasts and observe the device's display.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"system-image-push/internal/app"
	"system-image-push/internal/config"
	"system-image-push/internal/domain"
	"system-image-push/internal/logging"
	"system-image-push/internal/pushclient"
	"system-image-push/internal/repository"
	"system-image-push/internal/ui"
	"system-image-push/pkg/hash"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options configure a Harness. Display is the device's screen; a fresh
// one is created when nil.
type Options struct {
	Display      *ui.Display
	Device       domain.NotificationData
	Log          *logrus.Logger
	WaitTimeout  time.Duration
	ConnectAfter time.Duration
}

// Response is what the server answered to a submission.
type Response struct {
	Status int
	Body   []byte
}

// Harness is one server plus one connected device.
type Harness struct {
	App         *app.App
	WaitTimeout time.Duration

	server    *httptest.Server
	display   *ui.Display
	touch     *ui.Touch
	image     *pushclient.SystemImage
	device    *domain.RegisterDeviceResponse
	key       string
	log       *logrus.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// DefaultDevice is the device state a Harness starts from.
func DefaultDevice() domain.NotificationData {
	return domain.NotificationData{
		Channel:       "ubuntu-touch/devel-proposed",
		Device:        "mako",
		BuildNumber:   120,
		ChannelTarget: "ubuntu-touch/devel-proposed",
	}
}

// Start brings up the server, registers the device and waits until its
// push connection is live.
func Start(opts Options) (*Harness, error) {
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	if opts.Display == nil {
		opts.Display = ui.NewDisplay(opts.Log)
	}
	if opts.Device.Device == "" {
		opts.Device = DefaultDevice()
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 5 * time.Second
	}
	if opts.ConnectAfter <= 0 {
		opts.ConnectAfter = 5 * time.Second
	}

	key := uuid.New().String()
	keyHash, err := hash.HashKey(key)
	if err != nil {
		return nil, err
	}

	cfg := serverConfig(keyHash)
	a := app.New(cfg, repository.NewMemoryDeviceRepository(), repository.NewMemoryBroadcastRepository(), opts.Log)

	ctx, cancel := context.WithCancel(context.Background())
	h := &Harness{
		App:         a,
		WaitTimeout: opts.WaitTimeout,
		server:      httptest.NewServer(a.Handler()),
		display:     opts.Display,
		touch:       ui.NewTouch(opts.Display),
		key:         key,
		log:         opts.Log,
		ctx:         ctx,
		cancel:      cancel,
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		a.Run(ctx, 0)
	}()

	h.image, h.device, err = h.addDevice(opts.Device, opts.Display, opts.ConnectAfter)
	if err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// AddDevice registers another device showing on display and waits for
// its push connection.
func (h *Harness) AddDevice(data domain.NotificationData, display *ui.Display, timeout time.Duration) (*pushclient.SystemImage, error) {
	image, _, err := h.addDevice(data, display, timeout)
	return image, err
}

func (h *Harness) addDevice(data domain.NotificationData, display *ui.Display, timeout time.Duration) (*pushclient.SystemImage, *domain.RegisterDeviceResponse, error) {
	channel := h.App.Config.Broadcast.DefaultChannel
	reg, err := pushclient.Register(h.ctx, h.server.Client(), h.server.URL, &domain.RegisterDeviceRequest{
		Channel:      channel,
		ImageChannel: data.Channel,
		Model:        data.Device,
		BuildNumber:  data.BuildNumber,
	})
	if err != nil {
		return nil, nil, err
	}

	image := pushclient.NewSystemImage(data, display, h.log)
	client := pushclient.New(pushclient.Options{
		ServerURL:  h.server.URL,
		Token:      reg.Token,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 200 * time.Millisecond,
	}, image, h.log)

	want := h.App.Manager.ChannelConnections(channel) + 1
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		client.Run(h.ctx)
	}()

	if err := h.waitConnected(channel, want, timeout); err != nil {
		return nil, nil, err
	}
	return image, reg, nil
}

func serverConfig(keyHash string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:     uuid.New().String(),
			Expiration: time.Hour,
		},
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			MaxMessageSize:   65536,
			WriteWait:        5 * time.Second,
			PongWait:         60 * time.Second,
			PingPeriod:       54 * time.Second,
			ClientSendBuffer: 16,
		},
		Broadcast: config.BroadcastConfig{
			KeyHash:        keyHash,
			DefaultChannel: domain.DefaultChannel,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: "*",
			AllowedMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowedHeaders: "Content-Type,Authorization",
		},
	}
}

func (h *Harness) waitConnected(channel string, want int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for h.App.Manager.ChannelConnections(channel) < want {
		if time.Now().After(deadline) {
			return fmt.Errorf("device did not connect within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// Close stops the device and the server.
func (h *Harness) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		h.server.Close()
		h.wg.Wait()
	})
}

// CreateNotificationDataCopy returns the device's current system-image
// state for the test to mutate.
func (h *Harness) CreateNotificationDataCopy() domain.NotificationData {
	return h.image.Current()
}

// DeviceBuildNumber is the build installed on the device.
func (h *Harness) DeviceBuildNumber() int {
	return h.image.BuildNumber()
}

// InstallUpdate installs build on the device and reports it to the
// server the way the device does after an update.
func (h *Harness) InstallUpdate(build int) error {
	if _, err := pushclient.ReportBuild(h.ctx, h.server.Client(), h.server.URL, h.device.Token, build); err != nil {
		return err
	}
	h.image.SetBuildNumber(build)
	return nil
}

// ServerDevice is the server's record of the device.
func (h *Harness) ServerDevice() (*domain.Device, error) {
	return h.App.Devices.Get(h.device.Device.ID)
}

// CreatePushMessage wraps data in a system-image broadcast. expireOn is
// an RFC 3339 timestamp, or empty for no expiry.
func (h *Harness) CreatePushMessage(data domain.NotificationData, expireOn string) (*domain.PushMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	msg := &domain.PushMessage{Channel: domain.DefaultChannel, Data: raw}
	if expireOn != "" {
		t, err := time.Parse(time.RFC3339, expireOn)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry %q: %w", expireOn, err)
		}
		msg.ExpireOn = &t
	}
	return msg, nil
}

// SendPushBroadcastNotification posts msg to the server's broadcast
// endpoint.
func (h *Harness) SendPushBroadcastNotification(msg *domain.PushMessage) (*Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/broadcast", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.key)

	resp, err := h.server.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Body: b}, nil
}

// PastISOTime is an RFC 3339 timestamp one hour ago.
func (h *Harness) PastISOTime() string {
	return time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
}

// FutureISOTime is an RFC 3339 timestamp one hour ahead.
func (h *Harness) FutureISOTime() string {
	return time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
}

func (h *Harness) UnlockGreeter() {
	h.display.Unlock()
}

func (h *Harness) MainWindow() *ui.Display {
	return h.display
}

func (h *Harness) Touch() *ui.Touch {
	return h.touch
}
