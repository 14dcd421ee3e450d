// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verifyd/internal/artifact"
	"verifyd/internal/certificate"
	"verifyd/internal/lifecycle"
	lifecyclehandler "verifyd/internal/lifecycle/handler"
	"verifyd/internal/oracle"
	"verifyd/internal/oracle/ffmpeg"
	"verifyd/internal/oracle/scoring"
	"verifyd/internal/platform/config"
	"verifyd/internal/platform/httpserver"
	"verifyd/internal/platform/logger"
	"verifyd/internal/platform/postgres"
	platformredis "verifyd/internal/platform/redis"
	"verifyd/internal/quota"
	quotahandler "verifyd/internal/quota/handler"
	"verifyd/pkg/platform/audit"
	"verifyd/pkg/platform/audit/publisher"
	auditkafka "verifyd/pkg/platform/audit/publishers/kafka"
	auditmemory "verifyd/pkg/platform/audit/store/memory"
	"verifyd/pkg/platform/httputil"
	adminmw "verifyd/pkg/platform/middleware/admin"
	"verifyd/pkg/platform/middleware/request"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("verifyd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	artifacts, err := artifact.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Quota prefers Redis when configured; certificates need Postgres or
	// fall back to memory alongside quota.
	var quotaStore quota.Store
	switch {
	case redisClient != nil:
		quotaStore = quota.NewRedis(redisClient.Client)
		log.Info("quota ledger backend: redis")
	case db != nil:
		pgQuota := quota.NewPostgres(db)
		if err := pgQuota.EnsureSchema(ctx); err != nil {
			return err
		}
		quotaStore = pgQuota
		log.Info("quota ledger backend: postgres")
	default:
		quotaStore = quota.NewInMemoryStore()
		log.Warn("quota ledger backend: memory, records do not survive restart")
	}

	var certStore certificate.Store
	if db != nil {
		pgCerts := certificate.NewPostgres(db)
		if err := pgCerts.EnsureSchema(ctx); err != nil {
			return err
		}
		certStore = pgCerts
		log.Info("certificate store backend: postgres")
	} else {
		certStore = certificate.NewInMemoryStore()
		log.Warn("certificate store backend: memory, records do not survive restart")
	}

	publisherOpts := []publisher.Option{
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	}
	var kafkaSink *auditkafka.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err = auditkafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer func() { _ = kafkaSink.Close(context.Background()) }()
		publisherOpts = append(publisherOpts, publisher.WithSink(kafkaSink))
		log.Info("audit kafka sink enabled", "topic", cfg.KafkaTopic)
	}
	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	auditPublisher := publisher.NewPublisher(auditStore, publisherOpts...)
	defer auditPublisher.Close()

	ledger, err := quota.NewLedger(quotaStore, cfg.FreeUploadLimit,
		quota.WithLogger(log),
		quota.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return err
	}

	registry, err := certificate.NewRegistry(certStore, cfg.CertifyThreshold,
		certificate.WithLogger(log),
	)
	if err != nil {
		return err
	}

	var scorer oracle.Scorer
	if cfg.ScoringURL != "" {
		scorer = scoring.NewClient(cfg.ScoringURL)
		log.Info("scoring oracle: http", "url", cfg.ScoringURL)
	} else {
		scorer = scoring.Fixed(cfg.FallbackScore)
		log.Info("scoring oracle: fixed", "score", cfg.FallbackScore)
	}
	stamper := ffmpeg.New(cfg.FFmpegPath, cfg.LogoPath, log)

	metrics := lifecycle.NewMetrics(prometheus.DefaultRegisterer)
	engine, err := lifecycle.NewService(ledger, registry, artifacts, scorer, stamper, cfg.StampConcurrency,
		lifecycle.WithLogger(log),
		lifecycle.WithAuditPublisher(auditPublisher),
		lifecycle.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	lifecycleHandler := lifecyclehandler.New(engine, lifecyclehandler.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		FreeLimit:      cfg.FreeUploadLimit,
	}, log)
	quotaHandler := quotahandler.New(ledger, log)

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(request.RequestID)
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		lifecycleHandler.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdmin(cfg.AdminSigningKey, log))
			lifecycleHandler.RegisterAdmin(r)
			quotaHandler.RegisterAdmin(r)
		})
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting verifyd", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
