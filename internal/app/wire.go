package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/updownbet/internal/blob/s3"
	"github.com/alanyoungcy/updownbet/internal/cache/redis"
	"github.com/alanyoungcy/updownbet/internal/config"
	"github.com/alanyoungcy/updownbet/internal/crypto"
	"github.com/alanyoungcy/updownbet/internal/domain"
	"github.com/alanyoungcy/updownbet/internal/eventbus"
	"github.com/alanyoungcy/updownbet/internal/metrics"
	"github.com/alanyoungcy/updownbet/internal/notify"
	"github.com/alanyoungcy/updownbet/internal/oracle"
	"github.com/alanyoungcy/updownbet/internal/server/handler"
	"github.com/alanyoungcy/updownbet/internal/store/badger"
	"github.com/alanyoungcy/updownbet/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Ledger
	Ledger     domain.Ledger
	AuditStore domain.AuditStore // nil unless the ledger is Postgres

	// Redis-backed when configured, in-process otherwise.
	SignalBus   domain.SignalBus
	LockManager domain.LockManager // nil without Redis
	RateLimiter domain.RateLimiter // nil without Redis
	ReplayGuard domain.ReplayGuard

	// Oracle
	Oracle     domain.Oracle
	PriceCache domain.PriceCache // nil unless oracle.source is redis
	Pyth       *oracle.PythClient

	// Blob storage; both nil unless archive is enabled.
	Archiver      domain.Archiver
	ArchiveReader handler.ArchiveReader

	// Observability
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder
	Notifier *notify.Notifier

	// Keeper identity; nil when no wallet is configured.
	Signer *crypto.Signer

	// Health probes by dependency name.
	Health map[string]handler.Pinger
}

// pinger adapts a probe function to handler.Pinger.
type pinger func(ctx context.Context) error

func (p pinger) Ping(ctx context.Context) error { return p(ctx) }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- Ledger ---
	switch strings.ToLower(cfg.Storage.Driver) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
			AppName:  "updownbet-" + strings.ToLower(cfg.Mode),
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Ledger = postgres.NewLedger(pool, logger)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pool
	default:
		opts := []badger.Option{badger.WithLogger(logger), badger.WithGC(cfg.Badger.GC)}
		if cfg.Badger.DataDir != "" {
			opts = append(opts, badger.WithDataDir(cfg.Badger.DataDir))
		}
		ledger, err := badger.New(opts...)
		if err != nil {
			return fail("badger", err)
		}
		closers = append(closers, func() { _ = ledger.Close() })
		deps.Ledger = ledger
	}

	// Signed requests are remembered for the whole accepted timestamp window.
	skew := cfg.Server.SignatureMaxSkew.Duration
	if skew <= 0 {
		skew = crypto.DefaultMaxSkew
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBusWithMaxLen(redisClient, int64(cfg.Redis.StreamMaxLen))
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.ReplayGuard = redis.NewReplayGuard(redisClient, 2*skew)
		deps.Health["redis"] = redisClient
	} else {
		logger.InfoContext(ctx, "redis not configured, using in-process event bus")
		deps.SignalBus = eventbus.NewBus(cfg.Redis.StreamMaxLen)
		deps.ReplayGuard = crypto.NewReplayCache(2*skew, time.Now)
	}

	// --- Oracle ---
	deps.Pyth = oracle.NewPythClient(cfg.Oracle.HermesURL, cfg.Oracle.MaxAge.Duration)
	switch strings.ToLower(cfg.Oracle.Source) {
	case "redis":
		if redisClient == nil {
			return fail("oracle", fmt.Errorf("%w: oracle source redis requires redis", domain.ErrInvalidConfig))
		}
		cache := redis.NewPriceCache(redisClient, cfg.Oracle.MaxAge.Duration, cfg.Oracle.Retention.Duration)
		deps.PriceCache = cache
		deps.Oracle = cache
	default:
		deps.Oracle = deps.Pyth
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail("s3", err)
		}
		reader := s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewEpochArchiver(
			s3blob.NewWriter(s3Client),
			reader,
			deps.Ledger,
			deps.AuditStore,
			s3Client.Prefix(),
			logger,
		)
		deps.ArchiveReader = s3blob.NewArchiveLookup(reader, s3Client.Prefix())
		deps.Health["s3"] = pinger(s3Client.Health)
	}

	// --- Metrics ---
	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.NewRecorder(deps.Registry, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Keeper wallet ---
	keyCfg := crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}
	if keyCfg.Configured() {
		key, err := crypto.LoadKey(keyCfg)
		if err != nil {
			return fail("wallet", err)
		}
		signer, err := crypto.NewSigner(key)
		if err != nil {
			return fail("wallet", err)
		}
		deps.Signer = signer
	}

	return deps, cleanup, nil
}
