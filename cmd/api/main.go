package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tenauth.dev/internal/auth"
	"tenauth.dev/internal/config"
	"tenauth.dev/internal/httpapi"
	"tenauth.dev/internal/notify"
	"tenauth.dev/internal/obs"
	"tenauth.dev/internal/store/pg"
	"tenauth.dev/internal/tenant"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("missing TENAUTH_AUTH_SECRET")
	}

	logger, err := obs.InitLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backing storage. Without a DSN the process runs entirely in memory,
	// which is only good for local development.
	var (
		store auth.Store
		dir   tenant.Directory
		probe httpapi.ReadyProbe
	)
	if cfg.DatabaseDSN != "" {
		pgStore, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("open store", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
		dir = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore}
	} else {
		logger.Warn("no TENAUTH_PG_DSN set, using in-memory storage")
		mem := auth.NewInMemoryStore()
		store = mem
		dir = tenant.NewInMemoryDirectory()
	}

	svc, err := auth.NewService(store, dir, cfg.AuthSecret,
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithResetTTL(cfg.ResetTTL),
		auth.WithNotifier(notify.LogSender{}),
	)
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}

	resolver := tenant.NewResolver(dir, cfg.BaseDomain)
	origins := tenant.NewOriginCache(dir, cfg.BaseDomain, cfg.OriginRefreshInterval)
	go origins.Run(ctx)

	api := httpapi.New(httpapi.Options{
		Service:       svc,
		Resolver:      resolver,
		Origins:       origins,
		Probe:         probe,
		Version:       version,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting tenauth-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("base_domain", cfg.BaseDomain))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
