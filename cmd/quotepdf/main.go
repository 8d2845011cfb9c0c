package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"quotepdf/internal/config"
	"quotepdf/internal/domain"
	"quotepdf/internal/http/server"
	"quotepdf/internal/infra/cache"
	"quotepdf/internal/infra/chrome"
	"quotepdf/internal/infra/logging"
	"quotepdf/internal/infra/postgres"
	"quotepdf/internal/infra/ratelimit"
	"quotepdf/internal/infra/rodengine"
	"quotepdf/internal/tokens"
)

func main() {
	flags, err := parseFlags(os.Args, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.LoadFrom(flags.config)
	if flags.port != "" {
		cfg.Server.Port = config.NormalizePort(flags.port)
	}
	if flags.engine != "" {
		cfg.PDF.Engine = flags.engine
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	if cfg.Server.Environment == "development" && cfg.Logger.File == "" {
		logging.UseConsoleWriter()
	}
	if flags.logLevel != "" {
		logging.SetLogLevel(flags.logLevel)
	}

	// Error ignored: maxprocs.Set only fails on an invalid GOMAXPROCS env,
	// in which case the runtime default stays in place.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logging.Debug(fmt.Sprintf(format, args...))
	}))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	gate := chrome.NewGate(cfg.PDF.MaxConcurrent)
	defer gate.Close()

	deps := server.Deps{
		Config: cfg,
		Engine: chrome.Limit(newEngine(cfg), gate, cfg.AcquireTimeout()),
	}

	if cfg.Cache.PDFCacheEnabled && cfg.Cache.RedisHost != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		defer rdb.Close()
		deps.Cache = cache.New(rdb, cfg.Cache.PDFCacheTTL)
	}

	if limiting(cfg) {
		deps.LimiterStore = ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RateLimitDB,
		})
	}

	if cfg.AuthEnabled() {
		db := postgres.NewDB()
		defer db.Close()
		deps.Tokens = startTokenReloader(ctx, cfg, db)
	}

	app := server.New(deps)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

func newEngine(cfg config.Config) domain.Engine {
	if cfg.PDF.Engine == config.EngineRod {
		return rodengine.NewEngine(cfg)
	}
	return chrome.NewEngine(cfg)
}

func limiting(cfg config.Config) bool {
	return cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0 || cfg.RateLimiter.EnableTokenRateLimiter
}

// startTokenReloader loads API tokens once and keeps refreshing them. A
// failed first load leaves the store not ready, so keyed requests get 503
// until the database answers.
func startTokenReloader(ctx context.Context, cfg config.Config, db *postgres.DB) *tokens.Cache {
	store := tokens.NewCache()
	dsn, err := postgres.DSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid Postgres configuration", "error", err)
		return store
	}
	if conn, err := db.Get(dsn); err == nil {
		if err := postgres.Ping(conn); err != nil {
			logging.Warn("Token database not reachable yet", "error", err)
		}
	}
	reloader := tokens.NewReloader(postgres.NewTokenRepository(db, dsn), store, cfg.Auth.ReloadInterval)
	if err := reloader.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	reloader.Start(ctx)
	return store
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		logging.Info("Server listening", "addr", cfg.Server.Host+cfg.Server.Port, "env", cfg.Server.Environment)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	signal.Stop(sigint)

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
