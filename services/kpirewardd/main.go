package kpirewardd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"auxrewards/core/events"
	"auxrewards/crypto"
	"auxrewards/native/bank"
	"auxrewards/native/kpireward"
	"auxrewards/observability"
	"auxrewards/observability/logging"
	telemetry "auxrewards/observability/otel"
	"auxrewards/storage"
	"auxrewards/storage/journal"
	"auxrewards/storage/replay"
)

// Version is stamped at build time.
var Version = "dev"

type replayBackend interface {
	kpireward.ReplayCache
	Pruner
}

// Main initialises and runs the reward issuance daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/kpirewardd/config.yaml", "path to kpirewardd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("AUX_ENV"))
	logger := logging.Setup("kpirewardd", env, logging.WithLevel(cfg.LogLevel))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "kpirewardd",
		Version:     Version,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()
	kv := storage.NewKV(db)

	if err := ensureProgram(kv, cfg.Program, logger); err != nil {
		return err
	}

	jrnl, err := journal.Open(filepath.Join(cfg.DataDir, "journal.db"), journal.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = jrnl.Close() }()
	emitter := events.MultiEmitter{jrnl, logEmitter{logger: logger}}

	mintAuthority, err := crypto.ParseIdentity(cfg.Token.MintAuthority)
	if err != nil {
		return fmt.Errorf("token mint authority: %w", err)
	}
	ledger, err := bank.Open(kv, cfg.Token.Symbol, mintAuthority, emitter)
	if err != nil {
		return fmt.Errorf("open token ledger: %w", err)
	}

	cache, closeCache, err := openReplay(cfg.Replay)
	if err != nil {
		return err
	}
	defer closeCache()

	metrics := observability.KPIReward()
	engine, err := kpireward.NewEngine(kv, ledger.Issuer(mintAuthority),
		kpireward.WithReplayCache(cache),
		kpireward.WithReconciler(jrnl),
		kpireward.WithEmitter(emitter),
		kpireward.WithMetrics(metrics),
		kpireward.WithLogger(logger),
		kpireward.WithPaused(cfg.PauseOnStart),
	)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	scheduler, err := NewScheduler(cfg.Replay.PruneSchedule, cache, logger, metrics)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	batch := NewBatchProcessor(engine, cfg.Batch, logger)
	defer batch.Stop()

	auth, err := NewAuthenticator(cfg.Admin.BearerToken, logger)
	if err != nil {
		return fmt.Errorf("init admin auth: %w", err)
	}
	server, err := NewServer(ServerConfig{
		Engine:   engine,
		Partials: jrnl,
		Batch:    batch,
		Auth:     auth,
		Limiter:  NewRateLimiter(cfg.RateLimit),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("kpirewardd listening", slog.String("addr", cfg.ListenAddress), slog.String("replay", cfg.Replay.Backend))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func ensureProgram(kv *storage.KV, cfg ProgramConfig, logger *slog.Logger) error {
	store := kpireward.NewProgramStore(kv)
	_, err := store.Load()
	if err == nil {
		return nil
	}
	if !errors.Is(err, kpireward.ErrProgramNotInitialized) {
		return fmt.Errorf("load program: %w", err)
	}
	authority, err := crypto.ParseIdentity(cfg.Authority)
	if err != nil {
		return fmt.Errorf("program authority: %w", err)
	}
	var signer crypto.Identity
	if strings.TrimSpace(cfg.Signer) != "" {
		if signer, err = crypto.ParseIdentity(cfg.Signer); err != nil {
			return fmt.Errorf("program signer: %w", err)
		}
	}
	program, err := store.Initialize(authority, signer)
	if err != nil {
		return fmt.Errorf("initialize program: %w", err)
	}
	logger.Info("kpirewardd: program initialized",
		slog.String("authority", program.Authority.String()),
		slog.String("signer", program.SignerPubkey.String()))
	return nil
}

func openReplay(cfg ReplayConfig) (replayBackend, func(), error) {
	switch cfg.Backend {
	case ReplayBackendMemory:
		return kpireward.NewMemoryReplayCache(), func() {}, nil
	case ReplayBackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cache, err := replay.DialRedis(ctx, replay.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("dial replay redis: %w", err)
		}
		return cache, func() { _ = cache.Close() }, nil
	default:
		cache, err := replay.OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open replay cache: %w", err)
		}
		return cache, func() { _ = cache.Close() }, nil
	}
}
