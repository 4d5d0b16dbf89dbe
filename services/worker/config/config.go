package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the worker service.
type Config struct {
	LogLevel     string
	KafkaBrokers string
	GroupID      string
	PostgresDSN  string
	Concurrency  int
	MaxRetries   int
	JobTimeout   time.Duration
	RetryDelay   time.Duration
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		GroupID:      v.GetString("group_id"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		Concurrency:  v.GetInt("concurrency"),
		MaxRetries:   v.GetInt("max_retries"),
		JobTimeout:   v.GetDuration("job_timeout"),
		RetryDelay:   v.GetDuration("retry_delay"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
