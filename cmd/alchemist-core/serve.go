package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/adminhttp"
	"github.com/arc-self/alchemist-core/cache"
	"github.com/arc-self/alchemist-core/config"
	"github.com/arc-self/alchemist-core/contentstore"
	"github.com/arc-self/alchemist-core/eventlog"
	"github.com/arc-self/alchemist-core/natsclient"
	"github.com/arc-self/alchemist-core/policy"
	"github.com/arc-self/alchemist-core/ratelimit"
	"github.com/arc-self/alchemist-core/renderer/busbridge"
	"github.com/arc-self/alchemist-core/router"
	"github.com/arc-self/alchemist-core/secrets"
	"github.com/arc-self/alchemist-core/telemetry"
)

const serviceName = "alchemist-core"

// dedupSweepInterval is how often the event log's dedup window is swept
// for expired entries (eventlog.FileLog.SweepDedup), scheduled via
// robfig/cron the same way the teacher schedules periodic maintenance
// jobs rather than tying the sweep to the request path.
const dedupSweepInterval = "@every 1m"

func newServeCommand() *cobra.Command {
	var configPath string
	var httpAddr string
	var hubURL string
	var leafCredsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alchemist-core control plane",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configPath, httpAddr, hubURL, leafCredsPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the deployment config file")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "address the admin HTTP surface listens on")
	cmd.Flags().StringVar(&hubURL, "hub-url", "", "run as a leaf node connecting to this hub NATS URL (spec.md §5); empty means hub mode")
	cmd.Flags().StringVar(&leafCredsPath, "leaf-creds-path", "", "Vault KV2 path holding leaf bus credentials (secrets.GetBusCredentials), used when --hub-url is not set")
	return cmd
}

func serve(configPath, httpAddr, hubURL, leafCredsPath string) error {
	// ── Structured Logger ───────────────────────────────────────────────
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ── OpenTelemetry Tracer + Metrics ───────────────────────────────────
	ctx := context.Background()
	if otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); otelEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, serviceName, otelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(ctx)
			logger.Info("OTel tracer initialized", zap.String("endpoint", otelEndpoint))
		}

		mp, err := telemetry.InitMeterProvider(ctx, serviceName, otelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(ctx)
			logger.Info("OTel meter provider initialized", zap.String("endpoint", otelEndpoint))
		}
	}

	// ── Vault Secret Loading ─────────────────────────────────────────────
	vaultAddr := envOrDefault("VAULT_ADDR", "http://localhost:8200")
	vaultToken := envOrDefault("VAULT_TOKEN", "root")
	secretPath := envOrDefault("VAULT_SECRET_PATH", "secret/data/arc/alchemist-core")

	vaultManager, err := secrets.NewManager(vaultAddr, vaultToken)
	if err != nil {
		return fmt.Errorf("vault connection failed: %w", err)
	}
	kv, err := vaultManager.GetKV2(secretPath)
	if err != nil {
		return fmt.Errorf("failed to load secrets from vault: %w", err)
	}
	pgURL, _ := kv["PG_URL"].(string)
	if natsURL, ok := kv["NATS_URL"].(string); ok && natsURL != "" {
		cfg.Bus.URL = natsURL
	}

	// ── Database Connection Pool (OTel-instrumented) ──────────────────────
	poolCfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return fmt.Errorf("parse PG_URL: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database (OTel-instrumented)")

	// ── Content Store + Event Log (Postgres-mirrored) ─────────────────────
	contentStore := contentstore.NewPGStore(pool)
	if err := contentStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("content store schema: %w", err)
	}

	fileLog, err := eventlog.NewFileLog(cfg.EventLog.Root, logger, eventlog.DefaultDedupWindow)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	eventLog := eventlog.NewPGSnapshotMirror(fileLog, pool)
	if err := eventLog.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("event log schema: %w", err)
	}

	// ── NATS JetStream ─────────────────────────────────────────────────────
	// If --hub-url is set (or a leaf creds path resolves one via Vault),
	// this process runs as a leaf node per spec.md §5: it connects outward
	// to a hub rather than provisioning streams locally, and its router
	// buffers/backpressures outbound publishes across the hub link instead
	// of assuming a colocated broker.
	if hubURL == "" && leafCredsPath != "" {
		busCreds, err := vaultManager.GetBusCredentials(leafCredsPath)
		if err != nil {
			return fmt.Errorf("load leaf bus credentials: %w", err)
		}
		hubURL = busCreds.HubURL
		credsFile, err := writeTempCreds(busCreds.CredsFileContents)
		if err != nil {
			return fmt.Errorf("write leaf creds file: %w", err)
		}
		defer os.Remove(credsFile)
		cfg.Bus.CredsFile = credsFile
	}

	var natsOpts []nats.Option
	if cfg.Bus.CredsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(cfg.Bus.CredsFile))
	}

	busURL := cfg.Bus.URL
	if hubURL != "" {
		busURL = hubURL
	}
	natsClientConn, err := natsclient.NewClient(busURL, logger, natsOpts...)
	if err != nil {
		return fmt.Errorf("nats connection failed: %w", err)
	}
	defer natsClientConn.Close()

	var busRouter router.Router
	if hubURL != "" {
		leafRouter := router.NewLeafRouter(natsClientConn, router.LeafConfig{HubURL: hubURL})
		busRouter = leafRouter
		logger.Info("running in leaf mode", zap.String("hub_url", hubURL))
	} else {
		if err := natsClientConn.ProvisionStreams(); err != nil {
			return fmt.Errorf("nats stream provisioning failed: %w", err)
		}
		busRouter = router.NewNatsRouter(natsClientConn)
	}

	// Event-kind messages are published only after their durable append's
	// fsync completes (spec.md §4.5); the event log, not the producer,
	// owns that ordering, so it needs a direct handle on the router.
	eventLog.SetPublisher(busRouter)

	// ── Rate Limiter ───────────────────────────────────────────────────────
	limiter := ratelimit.NewLimiter(ratelimit.BaseConfig{Capacity: 10, Rate: 1})
	for model, tier := range cfg.RateLimit.Tiers {
		limiter.Configure(model, ratelimit.BaseConfig{Capacity: tier.Capacity, Rate: tier.Rate})
	}

	// ── Policy Engine ──────────────────────────────────────────────────────
	policyCache := policy.NewCache(policy.DefaultCacheTTL, 10_000)
	policyEngine := policy.NewEngine(policyCache)
	var policySet policy.Set
	if cfg.Policy.File != "" {
		policySet, err = policy.LoadSet(cfg.Policy.File)
		if err != nil {
			return fmt.Errorf("load policy set: %w", err)
		}
		logger.Info("policy set loaded", zap.String("version", policySet.Version), zap.Int("policies", len(policySet.Policies)))
	}

	// ── Response Cache (Redis primary, in-memory fallback) ─────────────────
	memCache := cache.NewMemoryLRU(cfg.Cache.MemoryCapacity)
	var responseCache cache.ResponseCache = memCache
	if cfg.Cache.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer redisClient.Close()
		redisBreaker := ratelimit.NewBreaker(ratelimit.BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: 30 * time.Second})
		responseCache = cache.NewTwoTier(cache.NewRemoteRedis(redisClient), memCache, redisBreaker, logger)
	}

	// ── Renderer Bridge (bus-mode) ──────────────────────────────────────────
	rendererBridge, err := busbridge.NewBusBridge(natsClientConn, "core", cfg.Renderer.ChannelCapacity)
	if err != nil {
		return fmt.Errorf("renderer bridge: %w", err)
	}
	defer rendererBridge.Close()

	// ── Component Pipeline ─────────────────────────────────────────────────
	pl := &pipeline{
		limiter:       limiter,
		policyEngine:  policyEngine,
		policySet:     policySet,
		eventLog:      eventLog,
		contentStore:  contentStore,
		responseCache: responseCache,
		router:        busRouter,
		log:           logger,
	}
	if err := pl.subscribeObserver(busRouter); err != nil {
		return fmt.Errorf("subscribe pipeline: %w", err)
	}

	rendererCtx, cancelRenderer := context.WithCancel(context.Background())
	defer cancelRenderer()
	go consumeRendererInput(rendererCtx, rendererBridge, pl, cfg.Kernel.MaxInlineBytes, logger)

	// ── Scheduled Maintenance (dedup-window sweep) ──────────────────────────
	sched := cron.New()
	if _, err := sched.AddFunc(dedupSweepInterval, fileLog.SweepDedup); err != nil {
		return fmt.Errorf("schedule dedup sweep: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP Server ──────────────────────────────────────────────────────
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(serviceName))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.Info("HTTP request", zap.String("URI", v.URI), zap.Int("status", v.Status))
			return nil
		},
	}))
	e.Use(echomw.Recover())

	var introspector router.Introspector
	if ip, ok := busRouter.(router.Introspector); ok {
		introspector = ip
	}
	adminhttp.RegisterRoutes(e, eventLog, introspector, logger)

	go func() {
		logger.Info("alchemist-core HTTP server listening", zap.String("addr", httpAddr))
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	// ── Graceful Shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown error", zap.Error(err))
	}
	logger.Info("alchemist-core shut down cleanly")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// writeTempCreds writes a leaf node's .creds file body to a private
// temp file, since nats.UserCredentials takes a path, not file contents,
// and Vault only hands back the contents.
func writeTempCreds(contents string) (string, error) {
	f, err := os.CreateTemp("", "alchemist-leaf-*.creds")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(contents); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
