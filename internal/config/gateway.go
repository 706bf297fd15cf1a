package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type GatewayConfig struct {
	Port              string
	AllowedOrigins    []string
	RateLimitRequests int64
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
	StoreBackend      string
	SeedInventory     []string
	NATSURL           string
	MetricsAddr       string
}

func LoadGatewayConfig() *GatewayConfig {
	viper.SetDefault("port", "8080")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("gateway.rate_limit_requests", 120)
	viper.SetDefault("gateway.rate_limit_window", time.Minute)
	viper.SetDefault("gateway.request_timeout", 30*time.Second)
	viper.SetDefault("store.backend", "postgres")
	viper.SetDefault("store.seed_inventory", "")
	viper.SetDefault("nats.url", "")
	viper.SetDefault("metrics.addr", ":9090")

	return &GatewayConfig{
		Port:              viper.GetString("port"),
		AllowedOrigins:    splitList(viper.GetString("cors.allowed_origins")),
		RateLimitRequests: viper.GetInt64("gateway.rate_limit_requests"),
		RateLimitWindow:   viper.GetDuration("gateway.rate_limit_window"),
		RequestTimeout:    viper.GetDuration("gateway.request_timeout"),
		StoreBackend:      viper.GetString("store.backend"),
		SeedInventory:     splitList(viper.GetString("store.seed_inventory")),
		NATSURL:           viper.GetString("nats.url"),
		MetricsAddr:       viper.GetString("metrics.addr"),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
