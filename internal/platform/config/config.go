// Package config loads service configuration: defaults, then an optional
// TOML file, then environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the full service configuration.
type Config struct {
	Server Server `toml:"server"`
	Log    Log    `toml:"log"`
	Redis  Redis  `toml:"redis"`
	Audit  Audit  `toml:"audit"`
	Roster Roster `toml:"roster"`
}

// Server captures HTTP server settings.
type Server struct {
	Addr            string        `toml:"addr" env:"ROSTERD_ADDR"`
	ReadTimeout     time.Duration `toml:"read_timeout" env:"ROSTERD_READ_TIMEOUT"`
	WriteTimeout    time.Duration `toml:"write_timeout" env:"ROSTERD_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"ROSTERD_SHUTDOWN_TIMEOUT"`
}

// Log captures logging settings.
type Log struct {
	Level  string `toml:"level" env:"ROSTERD_LOG_LEVEL"`
	Pretty bool   `toml:"pretty" env:"ROSTERD_LOG_PRETTY"`
}

// Redis configures the optional changefeed mirror. An empty URL disables it.
type Redis struct {
	URL          string        `toml:"url" env:"ROSTERD_REDIS_URL"`
	PoolSize     int           `toml:"pool_size" env:"ROSTERD_REDIS_POOL_SIZE"`
	MinIdleConns int           `toml:"min_idle_conns" env:"ROSTERD_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `toml:"dial_timeout" env:"ROSTERD_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `toml:"read_timeout" env:"ROSTERD_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `toml:"write_timeout" env:"ROSTERD_REDIS_WRITE_TIMEOUT"`
}

// Audit configures audit persistence and fan-out. Empty PostgresDSN keeps
// events in memory; empty KafkaBrokers disables the Kafka sink.
type Audit struct {
	PostgresDSN  string   `toml:"postgres_dsn" env:"ROSTERD_AUDIT_POSTGRES_DSN"`
	KafkaBrokers []string `toml:"kafka_brokers" env:"ROSTERD_AUDIT_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `toml:"kafka_topic" env:"ROSTERD_AUDIT_KAFKA_TOPIC"`
	Buffer       int      `toml:"buffer" env:"ROSTERD_AUDIT_BUFFER"`
}

// Roster captures lifecycle behavior knobs.
type Roster struct {
	StrictTransitions bool `toml:"strict_transitions" env:"ROSTERD_STRICT_TRANSITIONS"`
	PageSize          int  `toml:"page_size" env:"ROSTERD_PAGE_SIZE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			// WriteTimeout stays zero: watch endpoints hold the
			// response open indefinitely.
			ShutdownTimeout: 10 * time.Second,
		},
		Log: Log{Level: "info"},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit:  Audit{Buffer: 256},
		Roster: Roster{PageSize: 25},
	}
}

// Load builds the configuration. A missing file at path is an error; an
// empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
