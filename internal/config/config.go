package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr      string `envconfig:"ADDR" default:":8080"`
	JWTSecret string `envconfig:"JWT_SECRET" validate:"required,min=16"`
	// RING_TIMEOUT bounds how long a call may stay unanswered.
	RingTimeout time.Duration `envconfig:"RING_TIMEOUT" default:"30s" validate:"gt=0"`
	HistoryPath string        `envconfig:"HISTORY_PATH" default:"data/history"`
	// ALLOWED_ORIGINS is a comma-separated list; empty allows any origin.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	SendBuffer     int      `envconfig:"SEND_BUFFER" default:"32" validate:"gt=0"`
	HistoryLimit   int      `envconfig:"HISTORY_LIMIT" default:"50" validate:"gt=0"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
