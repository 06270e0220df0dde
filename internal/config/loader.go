package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies UPDOWN_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known UPDOWN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Protocol ──
	setStr(&cfg.Protocol.Admin, "UPDOWN_PROTOCOL_ADMIN")
	setStr(&cfg.Protocol.Treasury, "UPDOWN_PROTOCOL_TREASURY")
	setInt(&cfg.Protocol.FeeBps, "UPDOWN_PROTOCOL_FEE_BPS")
	setUint64(&cfg.Protocol.SettleTip, "UPDOWN_PROTOCOL_SETTLE_TIP")
	setStr(&cfg.Protocol.TipCurrency, "UPDOWN_PROTOCOL_TIP_CURRENCY")
	setInt(&cfg.Protocol.CutoffSecs, "UPDOWN_PROTOCOL_CUTOFF_SECS")
	setInt(&cfg.Protocol.EpochLengthSecs, "UPDOWN_PROTOCOL_EPOCH_LENGTH_SECS")
	setStr(&cfg.Protocol.OutcomeRule, "UPDOWN_PROTOCOL_OUTCOME_RULE")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "UPDOWN_STORAGE_DRIVER")
	setStr(&cfg.Badger.DataDir, "UPDOWN_BADGER_DATA_DIR")
	setBool(&cfg.Badger.GC, "UPDOWN_BADGER_GC")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "UPDOWN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "UPDOWN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "UPDOWN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "UPDOWN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "UPDOWN_REDIS_NAMESPACE")
	setInt(&cfg.Redis.StreamMaxLen, "UPDOWN_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "UPDOWN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "UPDOWN_S3_PREFIX")

	// ── Oracle ──
	setStr(&cfg.Oracle.Source, "UPDOWN_ORACLE_SOURCE")
	setStr(&cfg.Oracle.HermesURL, "UPDOWN_ORACLE_HERMES_URL")
	setDuration(&cfg.Oracle.MaxAge, "UPDOWN_ORACLE_MAX_AGE")
	setDuration(&cfg.Oracle.PollEvery, "UPDOWN_ORACLE_POLL_EVERY")
	setDuration(&cfg.Oracle.Retention, "UPDOWN_ORACLE_RETENTION")

	// ── Keeper ──
	setDuration(&cfg.Keeper.Interval, "UPDOWN_KEEPER_INTERVAL")
	setDuration(&cfg.Keeper.LockTTL, "UPDOWN_KEEPER_LOCK_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "UPDOWN_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "UPDOWN_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "UPDOWN_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "UPDOWN_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "UPDOWN_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "UPDOWN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "UPDOWN_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "UPDOWN_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.SignatureMaxSkew, "UPDOWN_SERVER_SIGNATURE_MAX_SKEW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "UPDOWN_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "UPDOWN_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "UPDOWN_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "UPDOWN_NOTIFY_EVENTS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "UPDOWN_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWN_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWN_WALLET_KEY_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "UPDOWN_MODE")
	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
