// Package config loads service configuration from the environment, with an
// optional .env file for development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the runtime configuration for the trading engine.
type Config struct {
	Port         string
	DatabaseURL  string // empty → in-memory store
	RedisURL     string // empty → no cache layer
	JWTSecret    string
	JWTIssuer    string
	TickInterval time.Duration
	SeedStocks   bool

	// Exposure ceilings for the risk limiter. Zero disables the ceiling.
	MaxSymbolExposure decimal.Decimal
	MaxSectorExposure decimal.Decimal
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{
		Port:         "8080",
		JWTIssuer:    "stocksim",
		TickInterval: 3 * time.Second,
		SeedStocks:   true,
	}

	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.RedisURL = os.Getenv("REDIS_URL")

	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		return c, errors.New("JWT_SECRET is required")
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		c.JWTIssuer = v
	}

	if v := os.Getenv("TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		if d <= 0 {
			return c, errors.New("TICK_INTERVAL must be positive")
		}
		c.TickInterval = d
	}

	if v := os.Getenv("MAX_SYMBOL_EXPOSURE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return c, fmt.Errorf("invalid MAX_SYMBOL_EXPOSURE: %q", v)
		}
		c.MaxSymbolExposure = d
	}
	if v := os.Getenv("MAX_SECTOR_EXPOSURE"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return c, fmt.Errorf("invalid MAX_SECTOR_EXPOSURE: %q", v)
		}
		c.MaxSectorExposure = d
	}

	if v := os.Getenv("SEED_STOCKS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("invalid SEED_STOCKS: %w", err)
		}
		c.SeedStocks = b
	}

	return c, nil
}
