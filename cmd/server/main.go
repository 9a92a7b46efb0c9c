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

	"system-image-push/internal/app"
	"system-image-push/internal/config"
	"system-image-push/internal/logging"
	"system-image-push/internal/repository"
	"system-image-push/pkg/hash"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	var (
		flHashKey    = fs.String("hash-key", "", "print the BROADCAST_KEY_HASH for the given key and exit")
		flPruneEvery = fs.Duration("prune-every", 10*time.Minute, "how often expired broadcasts are deleted")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("PUSH")); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(2)
	}

	if *flHashKey != "" {
		h, err := hash.HashKey(*flHashKey)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.JSON)

	deviceRepo, broadcastRepo, err := openRepositories(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}

	a := app.New(cfg, deviceRepo, broadcastRepo, log)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var g run.Group

	g.Add(func() error {
		a.Run(ctx, *flPruneEvery)
		return nil
	}, func(error) {
		cancel()
	})

	g.Add(func() error {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Server.Env}).Info("starting push server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server forced to shutdown")
		}
	})

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		var sig run.SignalError
		if !errors.As(err, &sig) {
			log.WithError(err).Fatal("push server failed")
		}
	}
	log.Info("server stopped gracefully")
}

func openRepositories(cfg *config.Config, log *logrus.Logger) (repository.DeviceRepository, repository.BroadcastRepository, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory storage, state is lost on restart")
		return repository.NewMemoryDeviceRepository(), repository.NewMemoryBroadcastRepository(), nil
	}

	client, err := kivik.New("couch", cfg.Database.URL())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to CouchDB: %w", err)
	}

	ctx := context.Background()
	exists, err := client.DBExists(ctx, cfg.Database.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
			return nil, nil, fmt.Errorf("create database: %w", err)
		}
		log.WithField("db", cfg.Database.Name).Info("created database")
	}

	if err := repository.EnsureBroadcastIndex(client, cfg.Database.Name); err != nil {
		return nil, nil, err
	}

	log.WithFields(logrus.Fields{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	}).Info("connected to CouchDB")

	return repository.NewDeviceRepository(client, cfg.Database.Name),
		repository.NewBroadcastRepository(client, cfg.Database.Name), nil
}
