/*
Package configs is responsible for loading and parsing the application's configuration settings.

All settings come from operating system environment variables: the running environment,
listen port, allowed origins, identity token secret, WebSocket limits and the
per-IP join rate limit.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// EnvDevelopment is the default environment name. It relaxes origin checks and secrets.
	EnvDevelopment = "development"

	defaultPort            = 8080
	defaultMaxMessageBytes = 1 << 20
	defaultSendQueueSize   = 256
	defaultJoinRate        = 0.5
	defaultJoinBurst       = 10
	developmentJWTSecret   = "your_default_insecure_secret_key_change_me"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Collaboration Settings
	MaxMessageBytes    int64
	SendQueueSize      int
	EchoProtocolErrors bool

	// Rate Limit Settings
	JoinRate  float64
	JoinBurst int
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// LoadConfig reads and parses the application configuration from environment variables.
// Every item has a default except JWT_SECRET outside development.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}

	port, err := envInt("PORT", defaultPort)
	if err != nil {
		return nil, err
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", port, 1024, 65535)
	}
	cfg.Port = port

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = developmentJWTSecret
	}

	// --- Collaboration Settings ---
	maxMessageBytes, err := envInt("MAX_MESSAGE_BYTES", defaultMaxMessageBytes)
	if err != nil {
		return nil, err
	}
	if maxMessageBytes <= 0 {
		return nil, fmt.Errorf("MAX_MESSAGE_BYTES must be positive, got %d", maxMessageBytes)
	}
	cfg.MaxMessageBytes = int64(maxMessageBytes)

	cfg.SendQueueSize, err = envInt("SEND_QUEUE_SIZE", defaultSendQueueSize)
	if err != nil {
		return nil, err
	}
	if cfg.SendQueueSize <= 0 {
		return nil, fmt.Errorf("SEND_QUEUE_SIZE must be positive, got %d", cfg.SendQueueSize)
	}

	cfg.EchoProtocolErrors, err = envBool("ECHO_PROTOCOL_ERRORS", true)
	if err != nil {
		return nil, err
	}

	// --- Rate Limit Settings ---
	cfg.JoinRate, err = envFloat("JOIN_RATE", defaultJoinRate)
	if err != nil {
		return nil, err
	}

	cfg.JoinBurst, err = envInt("JOIN_BURST", defaultJoinBurst)
	if err != nil {
		return nil, err
	}
	if cfg.JoinRate <= 0 || cfg.JoinBurst <= 0 {
		return nil, fmt.Errorf("JOIN_RATE and JOIN_BURST must be positive")
	}

	return cfg, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
