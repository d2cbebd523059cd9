package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-driven setting of the service.
type Config struct {
	Port        string `env:"PORT" envDefault:"3000"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"50051"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// DataSource selects where players.json/meta.json come from:
	// http, dir, clickhouse or sample.
	DataSource string `env:"DATA_SOURCE" envDefault:"dir"`
	DataBase   string `env:"DATA_BASE" envDefault:"./data"`

	// ReloadInterval re-fetches the dataset periodically; zero disables it.
	ReloadInterval time.Duration `env:"RELOAD_INTERVAL" envDefault:"0s"`

	Teams       int `env:"TEAMS" envDefault:"12"`
	TotalRounds int `env:"TOTAL_ROUNDS" envDefault:"16"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"memory"`
	SQLiteFile  string `env:"SQLITE_FILE" envDefault:"draftkit.sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	SnapshotKey string `env:"SNAPSHOT_KEY" envDefault:"draftkid:v0.1"`
	Restore     bool   `env:"RESTORE_SNAPSHOT" envDefault:"true"`

	// EventBus is nats (embedded in development) or local.
	EventBus    string `env:"EVENT_BUS" envDefault:"nats"`
	NATSURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"draftkit.events"`
	NATSStream  string `env:"NATS_STREAM" envDefault:"DRAFTKIT_EVENTS"`

	ClickHouse ClickHouseConfig `envPrefix:"CLICKHOUSE_"`
}

// ClickHouseConfig configures the ClickHouse projection source.
type ClickHouseConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:9000"`
	Database string `env:"DB" envDefault:"default"`
	User     string `env:"USER" envDefault:"default"`
	Password string `env:"PASSWORD"`
	Table    string `env:"TABLE" envDefault:"player_projections"`
}

// IsDevelopment reports whether the service runs with local stand-ins
// (embedded NATS, no external brokers).
func (c Config) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Validate checks the settings that have no safe fallback.
func (c Config) Validate() error {
	if c.Teams < 1 {
		return fmt.Errorf("TEAMS must be positive, got %d", c.Teams)
	}
	if c.TotalRounds < 1 {
		return fmt.Errorf("TOTAL_ROUNDS must be positive, got %d", c.TotalRounds)
	}
	switch c.DBDriver {
	case "memory", "sqlite":
	case "postgres":
		// development falls back to a SQLite-backed stand-in
		if c.DatabaseURL == "" && !c.IsDevelopment() {
			return fmt.Errorf("DATABASE_URL is required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER: %s (valid: memory, sqlite, postgres)", c.DBDriver)
	}
	switch c.DataSource {
	case "http", "dir", "clickhouse", "sample":
	default:
		return fmt.Errorf("unknown DATA_SOURCE: %s (valid: http, dir, clickhouse, sample)", c.DataSource)
	}
	switch c.EventBus {
	case "nats", "local":
	default:
		return fmt.Errorf("unknown EVENT_BUS: %s (valid: nats, local)", c.EventBus)
	}
	if c.ReloadInterval < 0 {
		return fmt.Errorf("RELOAD_INTERVAL must not be negative, got %s", c.ReloadInterval)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
