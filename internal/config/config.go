// Package config defines the top-level configuration for the up/down market
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by UPDOWN_* environment variables.
type Config struct {
	Protocol ProtocolConfig `toml:"protocol"`
	Storage  StorageConfig  `toml:"storage"`
	Badger   BadgerConfig   `toml:"badger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Oracle   OracleConfig   `toml:"oracle"`
	Keeper   KeeperConfig   `toml:"keeper"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Wallet   WalletConfig   `toml:"wallet"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ProtocolConfig holds the parameters used to initialize an empty ledger.
// Once the ledger holds a config record these are ignored; changes go through
// the admin API.
type ProtocolConfig struct {
	Admin           string        `toml:"admin"`
	Treasury        string        `toml:"treasury"`
	FeeBps          int           `toml:"fee_bps"`
	SettleTip       uint64        `toml:"settle_tip"`
	TipCurrency     string        `toml:"tip_currency"`
	CutoffSecs      int           `toml:"cutoff_secs"`
	EpochLengthSecs int           `toml:"epoch_length_secs"`
	OutcomeRule     string        `toml:"outcome_rule"`
	Assets          []AssetConfig `toml:"assets"`
}

// AssetConfig registers one asset at bootstrap.
type AssetConfig struct {
	Symbol    string `toml:"symbol"`
	OracleRef string `toml:"oracle_ref"`
	Currency  string `toml:"currency"`
}

// Bootstrappable reports whether enough is set to initialize a ledger.
func (p ProtocolConfig) Bootstrappable() bool {
	return p.Admin != "" && p.Treasury != ""
}

// Domain converts the bootstrap parameters into the stored config record.
func (p ProtocolConfig) Domain() domain.ProtocolConfig {
	return domain.ProtocolConfig{
		Admin:           strings.ToLower(p.Admin),
		Treasury:        strings.ToLower(p.Treasury),
		FeeBps:          uint16(p.FeeBps),
		SettleTip:       p.SettleTip,
		TipCurrency:     p.TipCurrency,
		CutoffSecs:      uint32(p.CutoffSecs),
		EpochLengthSecs: uint32(p.EpochLengthSecs),
	}
}

// DomainAssets converts the bootstrap asset list.
func (p ProtocolConfig) DomainAssets() []domain.AssetConfig {
	out := make([]domain.AssetConfig, len(p.Assets))
	for i, a := range p.Assets {
		out[i] = domain.AssetConfig{Symbol: a.Symbol, OracleRef: a.OracleRef, Currency: a.Currency}
	}
	return out
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	// Driver is "badger" or "postgres".
	Driver string `toml:"driver"`
}

// BadgerConfig holds the embedded ledger parameters.
type BadgerConfig struct {
	// DataDir is the on-disk location. Empty keeps the ledger in memory.
	DataDir string `toml:"data_dir"`
	GC      bool   `toml:"gc"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; without an
// address the process uses an in-memory bus and runs without locks or rate
// limits.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Namespace    string `toml:"namespace"`
	StreamMaxLen int    `toml:"stream_max_len"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// OracleConfig selects and tunes the price source.
type OracleConfig struct {
	// Source is "pyth" (query Hermes at settlement) or "redis" (read the
	// history recorded by the feeder).
	Source    string   `toml:"source"`
	HermesURL string   `toml:"hermes_url"`
	MaxAge    duration `toml:"max_age"`
	PollEvery duration `toml:"poll_every"`
	Retention duration `toml:"retention"`
}

// KeeperConfig holds the keeper loop parameters.
type KeeperConfig struct {
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
}

// ArchiveConfig holds the cold-archive schedule.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// Retention returns the retention window as a duration.
func (a ArchiveConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	// SignatureMaxSkew bounds the age of a wallet-signed request.
	SignatureMaxSkew duration `toml:"signature_max_skew"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// WalletConfig holds the keeper's key. The keeper signs nothing on chain; its
// address receives settlement tips.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Protocol: ProtocolConfig{
			FeeBps:          300,
			CutoffSecs:      60,
			EpochLengthSecs: 300,
			OutcomeRule:     "start_vs_end",
		},
		Storage: StorageConfig{Driver: "badger"},
		Badger: BadgerConfig{
			DataDir: "data/ledger",
			GC:      true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:     20,
			MaxRetries:   3,
			Namespace:    "updown",
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "updown-archive",
			ForcePathStyle: true,
			Prefix:         "archive",
		},
		Oracle: OracleConfig{
			Source:    "pyth",
			MaxAge:    duration{60 * time.Second},
			PollEvery: duration{time.Second},
			Retention: duration{24 * time.Hour},
		},
		Keeper: KeeperConfig{
			Interval: duration{5 * time.Second},
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:        120,
			RateWindow:       duration{time.Minute},
			SignatureMaxSkew: duration{5 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"epoch_settled", "epoch_invalid", "tip_skipped", "keeper_error"},
		},
		Mode:     ModeFull,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	ModeServer: true,
	ModeKeeper: true,
	ModeFull:   true,
}

// Operating modes.
const (
	ModeServer = "server"
	ModeKeeper = "keeper"
	ModeFull   = "full"
)

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsKeeper reports whether the mode drives epochs.
func (c *Config) RunsKeeper() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeKeeper || m == ModeFull
}

// RunsServer reports whether the mode serves the API.
func (c *Config) RunsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeServer || m == ModeFull
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, keeper, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Protocol
	p := c.Protocol
	if p.Admin != "" || p.Treasury != "" {
		if !p.Bootstrappable() {
			errs = append(errs, "protocol: admin and treasury must be set together")
		}
		if err := p.Domain().Validate(); err != nil {
			errs = append(errs, "protocol: "+err.Error())
		}
	}
	if p.FeeBps < 0 || p.FeeBps > domain.MaxFeeBps {
		errs = append(errs, fmt.Sprintf("protocol: fee_bps must be 0-%d, got %d", domain.MaxFeeBps, p.FeeBps))
	}
	switch strings.ToLower(p.OutcomeRule) {
	case "", "start_vs_end", "sign":
	default:
		errs = append(errs, fmt.Sprintf("protocol: unknown outcome_rule %q (valid: start_vs_end, sign)", p.OutcomeRule))
	}
	seen := make(map[string]bool, len(p.Assets))
	for i, a := range p.Assets {
		if err := domain.ValidateSymbol(a.Symbol); err != nil {
			errs = append(errs, fmt.Sprintf("protocol.assets[%d]: %v", i, err))
		}
		if a.OracleRef == "" || a.Currency == "" {
			errs = append(errs, fmt.Sprintf("protocol.assets[%d]: oracle_ref and currency are required", i))
		}
		if seen[a.Symbol] {
			errs = append(errs, fmt.Sprintf("protocol.assets[%d]: duplicate symbol %q", i, a.Symbol))
		}
		seen[a.Symbol] = true
	}

	// Storage
	switch strings.ToLower(c.Storage.Driver) {
	case "badger":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: badger, postgres)", c.Storage.Driver))
	}

	// Redis
	if c.Redis.Enabled() && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Oracle
	switch strings.ToLower(c.Oracle.Source) {
	case "pyth":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, "oracle: source redis requires redis.addr")
		}
	default:
		errs = append(errs, fmt.Sprintf("oracle: unknown source %q (valid: pyth, redis)", c.Oracle.Source))
	}
	if c.Oracle.MaxAge.Duration <= 0 {
		errs = append(errs, "oracle: max_age must be > 0")
	}

	// Keeper
	if c.RunsKeeper() && c.Keeper.Interval.Duration <= 0 {
		errs = append(errs, "keeper: interval must be > 0")
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive is enabled")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 0 {
			errs = append(errs, "archive: retention_days must be >= 0")
		}
	}

	// Server
	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Wallet
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
