package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("BROADCAST_KEY_HASH", "")
	t.Setenv("DB_DRIVER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Broadcast.DefaultChannel != "system" {
		t.Errorf("expected default channel system, got %s", cfg.Broadcast.DefaultChannel)
	}
	if cfg.JWT.Expiration != 720*time.Hour {
		t.Errorf("expected 720h token expiration, got %v", cfg.JWT.Expiration)
	}
	if cfg.Database.Driver != "couchdb" {
		t.Errorf("expected couchdb driver, got %s", cfg.Database.Driver)
	}
	if cfg.Client.MinBackoff != time.Second {
		t.Errorf("expected 1s min backoff, got %v", cfg.Client.MinBackoff)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("BUILD_NUMBER", "271")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("IMAGE_CHANNEL", "ubuntu-touch/devel-proposed")
	t.Setenv("DB_USER", "couch")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5984")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Client.BuildNumber != 271 {
		t.Errorf("expected build number 271, got %d", cfg.Client.BuildNumber)
	}
	if !cfg.Logging.JSON {
		t.Error("expected JSON logging")
	}
	if cfg.Client.ImageChannel != "ubuntu-touch/devel-proposed" {
		t.Errorf("unexpected image channel %s", cfg.Client.ImageChannel)
	}
	if got := cfg.Database.URL(); got != "http://couch:secret@db:5984" {
		t.Errorf("unexpected database url %s", got)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("JWT_EXPIRATION", "soon")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid JWT_EXPIRATION")
	}
}

func TestLoad_ProductionRequiresBroadcastKey(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("BROADCAST_KEY_HASH", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without BROADCAST_KEY_HASH in production")
	}
}
