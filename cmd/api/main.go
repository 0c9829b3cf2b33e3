package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/lease"
	"voice-agent-platform/internal/telephony"
	"voice-agent-platform/migrations"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/telemetry"
	"voice-agent-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const sweepLockKey = "lease:sweep:lock"

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName:   cfg.Telemetry.ServiceName,
		Environment:   cfg.App.Env,
		CollectorAddr: cfg.Telemetry.OTLPEndpoint,
	}); err != nil {
		return err
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		n, err := migrations.Apply(rootCtx, db)
		if err != nil {
			return err
		}
		log.Info("migrations applied", "count", n)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		return err
	}
	defer rdb.Close()

	cp, err := telephony.NewClient(telephony.ClientConfig{
		BaseURL:    cfg.Telephony.BaseURL,
		APIKey:     cfg.Telephony.APIKey,
		Timeout:    cfg.Telephony.Timeout,
		MaxRetries: cfg.Telephony.MaxRetries,
	})
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, postgresStores(db), cp, db)
	if err != nil {
		return err
	}

	// Closed in reverse order on shutdown.
	var closers []io.Closer
	closers = append(closers, lease.NewSweeper(rootCtx, log, a.leases, cfg.Lease.SweepInterval,
		lease.NewRedisLocker(rdb, sweepLockKey, cfg.Lease.SweepInterval)))

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Telemetry.ServiceName), nats.MaxReconnects(-1))
		if err != nil {
			return err
		}
		defer nc.Close()
		sub, err := billing.Subscribe(nc, cfg.NATS.BillingSubject, cfg.NATS.BillingQueue, a.billing, log, 30*time.Second)
		if err != nil {
			return err
		}
		closers = append(closers, sub)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, a.handlers, auth.RequireServiceToken(a.auth))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				log.Warn("close failed", "err", cerr)
			}
		}
		if terr := telemetry.Shutdown(shutdownCtx); terr != nil {
			log.Warn("telemetry shutdown failed", "err", terr)
		}
		return err
	})
	return g.Wait()
}
