// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const devSessionSecret = "statehub-dev-secret-change-me"

type Config struct {
	Dev            bool
	HTTPAddr       string        `validate:"required"`
	CORSOrigins    []string      `validate:"required,dive,url"`
	SessionSecret  string        `validate:"required,min=16"`
	SessionCookie  string        `validate:"required"`
	SessionTTL     time.Duration `validate:"min=1m"`
	SessionStore   string        `validate:"oneof=memory redis"`
	ResponseCache  string        `validate:"oneof=memory redis off"`
	CacheMaxAge    time.Duration `validate:"min=0"`
	DataUSABaseURL string        `validate:"required,url"`
	DataUSATimeout time.Duration `validate:"min=1s"`
	Playground     bool
	AuthRateLimit  int `validate:"min=1"`
	Parallelism    int `validate:"min=1"`
}

// ConfigFromEnv reads server config from environment variables and validates it.
func ConfigFromEnv() (Config, error) {
	dev := os.Getenv("LOG_DEV") == "1"
	cfg := Config{
		Dev:            dev,
		HTTPAddr:       getenv("HTTP_ADDR", "0.0.0.0:4000"),
		CORSOrigins:    splitList(getenv("CORS_ORIGINS", "http://localhost:3000,https://studio.apollographql.com")),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		SessionCookie:  getenv("SESSION_COOKIE", "statehub.sid"),
		SessionTTL:     durationEnv("SESSION_TTL", 24*time.Hour),
		SessionStore:   strings.ToLower(getenv("SESSION_STORE", "memory")),
		ResponseCache:  strings.ToLower(getenv("RESPONSE_CACHE", "memory")),
		CacheMaxAge:    durationEnv("CACHE_DEFAULT_MAX_AGE", time.Hour),
		DataUSABaseURL: getenv("DATAUSA_BASE_URL", "https://datausa.io"),
		DataUSATimeout: durationEnv("DATAUSA_TIMEOUT", 15*time.Second),
		Playground:     os.Getenv("GRAPHQL_PLAYGROUND") == "1",
		AuthRateLimit:  intEnv("AUTH_RATE_LIMIT", 20),
		Parallelism:    intEnv("GRAPHQL_PARALLELISM", 10),
	}
	if cfg.SessionSecret == "" && dev {
		cfg.SessionSecret = devSessionSecret
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
