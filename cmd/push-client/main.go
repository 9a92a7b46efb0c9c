// Command push-client runs the device side of system-image broadcasts: it
// registers the device, keeps a push connection open and logs update
// notifications.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"system-image-push/internal/config"
	"system-image-push/internal/domain"
	"system-image-push/internal/logging"
	"system-image-push/internal/pushclient"
	"system-image-push/internal/ui"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v3"
	"github.com/sirupsen/logrus"
)

// logPresenter stands in for a notification daemon.
type logPresenter struct {
	log *logrus.Logger
}

func (p logPresenter) Notify(n ui.Notification) {
	fields := logrus.Fields{}
	if n.Card != nil {
		fields["summary"] = n.Card.Summary
		fields["body"] = n.Card.Body
	}
	if n.Sound != "" {
		fields["sound"] = n.Sound
	}
	if n.Emblem != nil {
		fields["emblem"] = n.Emblem.Count
	}
	p.log.WithFields(fields).Warn("notification")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("push-client", flag.ExitOnError)
	var (
		flServer     = fs.String("push-server-url", cfg.Client.ServerURL, "push server base URL")
		flChannel    = fs.String("push-channel", cfg.Client.Channel, "push channel to join")
		flImage      = fs.String("image-channel", cfg.Client.ImageChannel, "system image channel")
		flModel      = fs.String("device-model", cfg.Client.Model, "device model")
		flBuild      = fs.Int("build-number", cfg.Client.BuildNumber, "installed build number")
		flToken      = fs.String("device-token", "", "existing device token; registers a new device when empty")
		flMinBackoff = fs.Duration("client-min-backoff", cfg.Client.MinBackoff, "first redial delay")
		flMaxBackoff = fs.Duration("client-max-backoff", cfg.Client.MaxBackoff, "longest redial delay")
		flHealth     = fs.Duration("health-interval", 30*time.Second, "how often to check the server is reachable; 0 disables")
		flDebug      = fs.Bool("debug", cfg.Logging.Level == "debug", "log at debug level")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarNoPrefix()); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(2)
	}

	level := cfg.Logging.Level
	if *flDebug {
		level = "debug"
	}
	log := logging.New(level, cfg.Logging.JSON)

	current := domain.NotificationData{
		Channel:     *flImage,
		Device:      *flModel,
		BuildNumber: *flBuild,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	token := *flToken
	if token == "" {
		reg, err := pushclient.Register(ctx, httpClient, *flServer, &domain.RegisterDeviceRequest{
			Channel:      *flChannel,
			ImageChannel: current.Channel,
			Model:        current.Device,
			BuildNumber:  current.BuildNumber,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to register device")
		}
		token = reg.Token
		log.WithField("device", reg.Device.ID).Info("registered device")
	} else {
		device, err := pushclient.ReportBuild(ctx, httpClient, *flServer, token, current.BuildNumber)
		if err != nil {
			log.WithError(err).Fatal("failed to report installed build")
		}
		log.WithFields(logrus.Fields{"device": device.ID, "build": device.BuildNumber}).Info("reported installed build")
	}

	var connectivity <-chan bool
	if *flHealth > 0 {
		connectivity = pushclient.WatchServer(ctx, httpClient, *flServer, *flHealth)
	}

	image := pushclient.NewSystemImage(current, logPresenter{log: log}, log)
	client := pushclient.New(pushclient.Options{
		ServerURL:    *flServer,
		Token:        token,
		MinBackoff:   *flMinBackoff,
		MaxBackoff:   *flMaxBackoff,
		Connectivity: connectivity,
	}, image, log)

	var g run.Group
	g.Add(func() error {
		return client.Run(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if err != nil && !errors.As(err, &sig) && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("push client stopped")
	}
	log.Info("push client stopped")
}
