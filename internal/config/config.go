// internal/config/config.go

// Package config collects the server's environment-driven settings. Values
// come from the process environment; cmd/server loads a .env file first via
// godotenv autoload.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	// Addr is the listen address, e.g. ":8081".
	Addr string
	// CardsDir is the card catalog directory.
	CardsDir string
	// AllowedOrigins feeds the CORS layer.
	AllowedOrigins []string
	// RedisAddr enables round telemetry when non-empty.
	RedisAddr string
	RedisDB   int
	// LogLevel is a logrus level name.
	LogLevel string
}

// Load reads the configuration from the environment, applying defaults.
func Load() Config {
	addr := ":8081"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	return Config{
		Addr:           addr,
		CardsDir:       getEnv("CARDS_DIR", "./static/assets/cards"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "https://*,http://*"), ","),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as an integer, else a default.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
