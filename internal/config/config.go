// Package config holds typed configuration loaded through viper.
package config

import "github.com/spf13/viper"

// Config holds typed configuration for the server.
type Config struct {
	LogLevel      string
	HTTPPort      string
	MetricsAddr   string
	Store         string // "postgres" or "memory"
	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  string
	JWTSecret     string
	ReconcileCron string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:      v.GetString("log_level"),
		HTTPPort:      v.GetString("http_port"),
		MetricsAddr:   v.GetString("metrics_addr"),
		Store:         v.GetString("store"),
		PostgresDSN:   v.GetString("postgres_dsn"),
		RedisAddr:     v.GetString("redis_addr"),
		KafkaBrokers:  v.GetString("kafka_brokers"),
		JWTSecret:     v.GetString("jwt_secret"),
		ReconcileCron: v.GetString("reconcile_cron"),
	}
}
