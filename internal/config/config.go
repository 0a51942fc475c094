package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the service configuration.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Auth   AuthConfig
	Ping   PingConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ping, err := loadPingConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Store:  loadStoreConfig(),
		Auth:   auth,
		Ping:   ping,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":3000" or "127.0.0.1:3000" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig describes the persistence backends. An empty MySQLDSN selects
// the in-memory store; an empty RedisURL disables the tally cache.
type StoreConfig struct {
	MySQLDSN string
	RedisURL string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		MySQLDSN: strings.TrimSpace(os.Getenv("MYSQL_DSN")),
		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),
	}
}

// AuthConfig describes password hashing. Cost zero means the bcrypt default.
type AuthConfig struct {
	BcryptCost int
}

func loadAuthConfig() (AuthConfig, error) {
	cost, err := parseOptionalIntEnv("BCRYPT_COST")
	if err != nil {
		return AuthConfig{}, err
	}
	if cost == nil {
		return AuthConfig{}, nil
	}
	return AuthConfig{BcryptCost: *cost}, nil
}

// PingConfig describes the heartbeat sweep of the connection registry.
type PingConfig struct {
	Interval time.Duration
}

func loadPingConfig() (PingConfig, error) {
	seconds, err := parseOptionalIntEnv("PING_INTERVAL")
	if err != nil {
		return PingConfig{}, err
	}
	interval := 30 * time.Second
	if seconds != nil {
		if *seconds < 1 {
			return PingConfig{}, fmt.Errorf("invalid PING_INTERVAL value: %d", *seconds)
		}
		interval = time.Duration(*seconds) * time.Second
	}
	return PingConfig{Interval: interval}, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
