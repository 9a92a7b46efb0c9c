package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
	Broadcast BroadcastConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Client    ClientConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	// Driver is "couchdb" or "memory".
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", c.User, c.Password, c.Host, c.Port)
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize    int
	WriteBufferSize   int
	MaxMessageSize    int64
	WriteWait         time.Duration
	PongWait          time.Duration
	PingPeriod        time.Duration
	MaxConnPerChannel int
	ClientSendBuffer  int
}

type BroadcastConfig struct {
	// KeyHash is the bcrypt hash of the key broadcast senders present.
	// An empty hash leaves the endpoint open, which is only allowed
	// outside production.
	KeyHash        string
	DefaultChannel string
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
	JSON  bool
}

// ClientConfig configures the device side push client.
type ClientConfig struct {
	ServerURL    string
	Channel      string
	ImageChannel string
	Model        string
	BuildNumber  int
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	jwtExp, err := time.ParseDuration(getEnv("JWT_EXPIRATION", "720h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}

	minBackoff, err := time.ParseDuration(getEnv("CLIENT_MIN_BACKOFF", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLIENT_MIN_BACKOFF: %w", err)
	}

	maxBackoff, err := time.ParseDuration(getEnv("CLIENT_MAX_BACKOFF", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLIENT_MAX_BACKOFF: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "couchdb"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "push"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
			Expiration: jwtExp,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:    getEnvAsInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize:   getEnvAsInt("WS_WRITE_BUFFER_SIZE", 4096),
			MaxMessageSize:    int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 65536)),
			WriteWait:         10 * time.Second,
			PongWait:          60 * time.Second,
			PingPeriod:        54 * time.Second,
			MaxConnPerChannel: getEnvAsInt("WS_MAX_CONN_PER_CHANNEL", 100000),
			ClientSendBuffer:  getEnvAsInt("WS_CLIENT_SEND_BUFFER", 64),
		},
		Broadcast: BroadcastConfig{
			KeyHash:        getEnv("BROADCAST_KEY_HASH", ""),
			DefaultChannel: getEnv("BROADCAST_DEFAULT_CHANNEL", "system"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getEnvAsBool("LOG_JSON", false),
		},
		Client: ClientConfig{
			ServerURL:    getEnv("PUSH_SERVER_URL", "http://localhost:8080"),
			Channel:      getEnv("PUSH_CHANNEL", "system"),
			ImageChannel: getEnv("IMAGE_CHANNEL", "ubuntu-touch/stable"),
			Model:        getEnv("DEVICE_MODEL", "mako"),
			BuildNumber:  getEnvAsInt("BUILD_NUMBER", 0),
			MinBackoff:   minBackoff,
			MaxBackoff:   maxBackoff,
		},
	}

	if cfg.Server.Env == "production" && cfg.Broadcast.KeyHash == "" {
		return nil, fmt.Errorf("BROADCAST_KEY_HASH is required in production")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
