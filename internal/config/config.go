package config

import (
	"os"
	"strconv"
	"time"

	"github.com/manpreetbhatti/inkwell/internal/bus"
)

type Config struct {
	Port      string
	DBPath    string
	MDNS      bool
	Rate      float64
	Burst     int
	Retention time.Duration

	// Addr empty means a single relay with in-process fan-out
	Redis bus.RedisConfig
}

type PeerConfig struct {
	RelayURL          string
	Room              string
	ReconnectInterval time.Duration
	ReconnectAttempts int
}

// Load reads the relay settings from the environment
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		DBPath:    getEnv("INKWELL_DB_PATH", ":memory:"),
		MDNS:      getBool("INKWELL_MDNS", false),
		Rate:      getFloat("INKWELL_RATE", 100),
		Burst:     getInt("INKWELL_BURST", 200),
		Retention: getDuration("INKWELL_RETENTION", 24*time.Hour),
		Redis: bus.RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
	}
}

// LoadPeer reads the peer defaults from the environment. Command line flags
// override them.
func LoadPeer() *PeerConfig {
	return &PeerConfig{
		RelayURL:          getEnv("INKWELL_RELAY_URL", ""),
		Room:              getEnv("INKWELL_ROOM", "default"),
		ReconnectInterval: getDuration("INKWELL_RECONNECT_INTERVAL", 2*time.Second),
		ReconnectAttempts: getInt("INKWELL_RECONNECT_ATTEMPTS", 3),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
