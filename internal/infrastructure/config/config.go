package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	App       AppConfig       `toml:"app"`
	User      UserConfig      `toml:"user"`
	Backend   BackendConfig   `toml:"backend"`
	Feed      FeedConfig      `toml:"feed"`
	Symbols   SymbolsConfig   `toml:"symbols"`
	Consumers ConsumersConfig `toml:"consumers"`
	Alerts    AlertsConfig    `toml:"alerts"`
	Storage   StorageConfig   `toml:"storage"`
}

type AppConfig struct {
	LogLevel               string `toml:"log_level" env:"NEXCHAIN_LOG_LEVEL"`
	SnapshotEveryMin       int    `toml:"snapshot_every_min"`
	SnapshotRetentionHours int    `toml:"snapshot_retention_hours"`
}

type UserConfig struct {
	ID string `toml:"id" env:"NEXCHAIN_USER_ID"`
}

type BackendConfig struct {
	BaseURL    string `toml:"base_url" env:"NEXCHAIN_BACKEND_URL"`
	Token      string `toml:"token" env:"NEXCHAIN_BACKEND_TOKEN"`
	TimeoutSec int    `toml:"timeout_sec"`
}

type FeedConfig struct {
	Name      string `toml:"name"`
	WsURL     string `toml:"ws_url" env:"NEXCHAIN_FEED_WS_URL"`
	Reconnect bool   `toml:"reconnect"`
}

type SymbolsConfig struct {
	Quote     string   `toml:"quote"`
	TableFile string   `toml:"table_file"`
	Coins     []string `toml:"coins"` // used when the backend coin list is unavailable
}

type ConsumersConfig struct {
	CoinTable      bool `toml:"coin_table"`
	Watchlist      bool `toml:"watchlist"`
	Alerts         bool `toml:"alerts"`
	CoinRefreshSec int  `toml:"coin_refresh_sec"`
}

type AlertsConfig struct {
	RefreshSec int `toml:"refresh_sec"`
	CheckSec   int `toml:"check_sec"`
}

type StorageConfig struct {
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
}

type SQLiteConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type PostgresConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn" env:"NEXCHAIN_POSTGRES_DSN"`
}

type RedisConfig struct {
	Enabled        bool   `toml:"enabled"`
	Addr           string `toml:"addr" env:"NEXCHAIN_REDIS_ADDR"`
	Password       string `toml:"password" env:"NEXCHAIN_REDIS_PASSWORD"`
	DB             int    `toml:"db"`
	Prefix         string `toml:"prefix"`
	TTLSeconds     int    `toml:"ttl_seconds"`
	TriggerStream  string `toml:"trigger_stream"`
	TriggerChannel string `toml:"trigger_channel"`
}

type KafkaConfig struct {
	Enabled        bool     `toml:"enabled"`
	Brokers        []string `toml:"brokers" env:"NEXCHAIN_KAFKA_BROKERS" env-separator:","`
	TopicPrices    string   `toml:"topic_prices"`
	TopicTriggers  string   `toml:"topic_triggers"`
	TopicSnapshots string   `toml:"topic_snapshots"`
	BatchSize      int      `toml:"batch_size"`
	BatchTimeoutMs int      `toml:"batch_timeout_ms"`
}

// Load reads the TOML file, applies .env and environment overrides, then
// defaults and validation.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading overrides from environment")
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env overrides: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.SnapshotEveryMin <= 0 {
		cfg.App.SnapshotEveryMin = 5
	}
	if cfg.App.SnapshotRetentionHours <= 0 {
		cfg.App.SnapshotRetentionHours = 24
	}
	if cfg.Backend.TimeoutSec <= 0 {
		cfg.Backend.TimeoutSec = 10
	}
	if strings.TrimSpace(cfg.Feed.Name) == "" {
		cfg.Feed.Name = "BINANCE"
	}
	cfg.Feed.Name = strings.ToUpper(strings.TrimSpace(cfg.Feed.Name))
	if strings.TrimSpace(cfg.Symbols.Quote) == "" {
		cfg.Symbols.Quote = "usdt"
	}
	if cfg.Consumers.CoinRefreshSec <= 0 {
		cfg.Consumers.CoinRefreshSec = 60
	}
	if cfg.Alerts.RefreshSec <= 0 {
		cfg.Alerts.RefreshSec = 30
	}
	if cfg.Alerts.CheckSec <= 0 {
		cfg.Alerts.CheckSec = 10
	}

	r := &cfg.Storage.Redis
	if strings.TrimSpace(r.Prefix) == "" {
		r.Prefix = "nexchain"
	}

	k := &cfg.Storage.Kafka
	if k.TopicPrices == "" {
		k.TopicPrices = "nexchain.prices"
	}
	if k.TopicTriggers == "" {
		k.TopicTriggers = "nexchain.alert-triggers"
	}
	if k.TopicSnapshots == "" {
		k.TopicSnapshots = "nexchain.snapshots"
	}
	if k.BatchSize <= 0 {
		k.BatchSize = 100
	}
	if k.BatchTimeoutMs <= 0 {
		k.BatchTimeoutMs = 1000
	}
}

func validate(cfg *Config) error {
	cfg.Symbols.Coins = normalizeCoinIDs(cfg.Symbols.Coins)
	cfg.User.ID = strings.TrimSpace(cfg.User.ID)

	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return errors.New("backend.base_url empty")
	}
	if strings.TrimSpace(cfg.Feed.WsURL) == "" {
		return errors.New("feed.ws_url empty")
	}

	if cfg.Storage.SQLite.Enabled && strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		return errors.New("storage.sqlite.path empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Kafka.Enabled {
		cfg.Storage.Kafka.Brokers = trimList(cfg.Storage.Kafka.Brokers)
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return errors.New("storage.kafka.brokers empty but enabled")
		}
	}
	return nil
}

// EnabledConsumers lists the consumers switched on in [consumers].
func (c *Config) EnabledConsumers() []string {
	var out []string
	if c.Consumers.CoinTable {
		out = append(out, "coin_table")
	}
	if c.Consumers.Watchlist {
		out = append(out, "watchlist")
	}
	if c.Consumers.Alerts {
		out = append(out, "alerts")
	}
	return out
}

func normalizeCoinIDs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		id := strings.ToLower(strings.TrimSpace(s))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
