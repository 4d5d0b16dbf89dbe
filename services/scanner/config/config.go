package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the scanner service.
type Config struct {
	LogLevel     string
	KafkaBrokers string
	RedisAddr    string
	PostgresDSN  string
	Schedule     string
	BatchSize    int
	LeaderTTL    time.Duration
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		Schedule:     v.GetString("schedule"),
		BatchSize:    v.GetInt("batch_size"),
		LeaderTTL:    v.GetDuration("leader_ttl"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
