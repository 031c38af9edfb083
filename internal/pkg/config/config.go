// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	DBPath    string `envconfig:"DB_PATH" default:"./data/settlement.db"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// Currency every settlement must be denominated in.
	Currency string `envconfig:"CURRENCY" default:"NGN"`

	// ActiveProvider selects which gateway new charges are verified
	// against: "paystack" (primary) or "flutterwave" (legacy).
	ActiveProvider string `envconfig:"PAYMENT_PROVIDER" default:"paystack"`

	PaystackBaseURL    string `envconfig:"PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	PaystackSecretKey  string `envconfig:"PAYSTACK_SECRET_KEY"`
	FlutterwaveBaseURL string `envconfig:"FLUTTERWAVE_BASE_URL" default:"https://api.flutterwave.com"`
	FlutterwaveSecret  string `envconfig:"FLUTTERWAVE_SECRET_KEY"`

	OTelServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"settlement-service"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}
	return &cfg, nil
}
