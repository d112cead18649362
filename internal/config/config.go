// Package config loads server configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port        string // default "8080"
	DatabaseURL string // empty means in-memory only
	RedisURL    string // empty disables the cache layer

	CashDecimalPlaces int32 // default 2
	QtyDecimalPlaces  int32 // default 8

	AllowShort          bool            // default false
	ShortFloor          decimal.Decimal // default -1000
	ShortFloorInclusive bool            // default false

	CacheTTL time.Duration // default 30s
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvDefault("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	var err error
	if cfg.CashDecimalPlaces, err = getEnvInt32("CASH_DECIMAL_PLACES", 2); err != nil {
		return nil, err
	}
	if cfg.QtyDecimalPlaces, err = getEnvInt32("QTY_DECIMAL_PLACES", 8); err != nil {
		return nil, err
	}
	if cfg.CashDecimalPlaces < 0 || cfg.QtyDecimalPlaces < 0 {
		return nil, fmt.Errorf("decimal places must be non-negative")
	}

	cfg.AllowShort = getEnvBool("ALLOW_SHORT", false)
	cfg.ShortFloorInclusive = getEnvBool("SHORT_FLOOR_INCLUSIVE", false)

	floorStr := getEnvDefault("SHORT_FLOOR", "-1000")
	cfg.ShortFloor, err = decimal.NewFromString(floorStr)
	if err != nil {
		return nil, fmt.Errorf("SHORT_FLOOR must be a decimal, got %q", floorStr)
	}

	ttlStr := getEnvDefault("CACHE_TTL", "30s")
	cfg.CacheTTL, err = time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("CACHE_TTL must be a duration, got %q", ttlStr)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt32(key string, def int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return int32(n), nil
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
