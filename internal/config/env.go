package config

import (
	"log"

	"github.com/spf13/viper"
)

var envBindings = map[string]string{
	"port": "PORT",

	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key":   "JWT_SECRET_KEY",
	"jwt.expiry_hours": "JWT_EXPIRY_HOURS",

	"ledger.activation_bonus":      "LEDGER_ACTIVATION_BONUS",
	"ledger.wallet_topup_minimum":  "LEDGER_WALLET_TOPUP_MINIMUM",
	"ledger.topup_bonus_threshold": "LEDGER_TOPUP_BONUS_THRESHOLD",
	"ledger.topup_bonus_percent":   "LEDGER_TOPUP_BONUS_PERCENT",
	"ledger.max_amount":            "LEDGER_MAX_AMOUNT",
	"ledger.max_attempts":          "LEDGER_MAX_ATTEMPTS",
	"ledger.retry_base_delay":      "LEDGER_RETRY_BASE_DELAY",
	"ledger.retry_max_delay":       "LEDGER_RETRY_MAX_DELAY",
	"ledger.serial_pattern":        "LEDGER_SERIAL_PATTERN",

	"gateway.rate_limit_requests": "GATEWAY_RATE_LIMIT_REQUESTS",
	"gateway.rate_limit_window":   "GATEWAY_RATE_LIMIT_WINDOW",
	"gateway.request_timeout":     "GATEWAY_REQUEST_TIMEOUT",
	"cors.allowed_origins":        "CORS_ALLOWED_ORIGINS",

	"store.backend":        "STORE_BACKEND",
	"store.seed_inventory": "STORE_SEED_INVENTORY",
	"nats.url":             "NATS_URL",
	"metrics.addr":         "METRICS_ADDR",
}

// LoadEnv reads an optional .env file and binds every configuration key to
// its environment variable. Environment variables override the file.
func LoadEnv() {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
}
