package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagemd/internal/audit"
	auditapi "pagemd/internal/audit/handler"
	auditkafka "pagemd/internal/audit/kafka"
	"pagemd/internal/clinic"
	clinicapi "pagemd/internal/clinic/handler"
	"pagemd/internal/governance"
	governanceapi "pagemd/internal/governance/handler"
	governancemetrics "pagemd/internal/governance/metrics"
	"pagemd/internal/jwtauth"
	"pagemd/internal/platform/config"
	"pagemd/internal/platform/httpserver"
	"pagemd/internal/platform/logger"
	"pagemd/internal/platform/postgres"
	"pagemd/internal/platform/redis"
	"pagemd/internal/platformaudit"
	chainapi "pagemd/internal/platformaudit/handler"
	chainmetrics "pagemd/internal/platformaudit/metrics"
	httptransport "pagemd/internal/transport/http"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx := context.Background()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Platform hash chain.
	chainStore := platformaudit.NewPostgres(db)
	chainMetrics := chainmetrics.New()
	chain := platformaudit.NewWriter(chainStore,
		platformaudit.WithLogger(log),
		platformaudit.WithMetrics(chainMetrics),
	)
	verifier := platformaudit.NewVerifier(chainStore,
		platformaudit.VerifierWithLogger(log),
		platformaudit.VerifierWithMetrics(chainMetrics),
	)

	// Clinical audit trail: handlers enqueue, the worker persists.
	auditStore := audit.NewPostgres(db)
	auditMetrics := audit.NewMetrics()
	inbox := make(chan audit.Event, cfg.AuditInboxLen)
	recorderOpts := []audit.RecorderOption{
		audit.WithLogger(log),
		audit.WithMetrics(auditMetrics),
		audit.WithInbox(inbox),
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := auditkafka.New(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		recorderOpts = append(recorderOpts, audit.WithSink(sink))
	}
	recorder := audit.NewRecorder(auditStore, recorderOpts...)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	worker := audit.NewWorker(auditStore, inbox, log, auditMetrics)
	go func() {
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	// Clinic registry and break-glass grants.
	clinicStore := clinic.NewPostgres(db)
	clinics := clinic.NewService(clinicStore, clinicStore, chain,
		clinic.WithLogger(log),
		clinic.WithClinicalRecorder(recorder),
	)

	// Role governance. Redis coordinates syncs across replicas when
	// configured; the single-process locker covers everything else.
	governanceOpts := []governance.Option{
		governance.WithLogger(log),
		governance.WithMetrics(governancemetrics.New()),
	}
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		governanceOpts = append(governanceOpts,
			governance.WithLocker(governance.NewRedisLocker(redisClient.Client, log)))
	}
	governanceSvc := governance.NewService(
		governance.NewPostgresTemplates(db),
		governance.NewPostgresRoles(db),
		clinic.NewDirectory(clinicStore),
		chain,
		governanceOpts...,
	)

	validator := jwtauth.NewJWTService(cfg.JWTSigningKey, "pagemd-platform", "pagemd-operators")

	router := httptransport.NewRouter(httptransport.Handlers{
		Governance: governanceapi.New(governanceSvc, log),
		Clinics:    clinicapi.New(clinics, log),
		Chain:      chainapi.New(verifier, chainStore, log),
		Audit:      auditapi.New(auditStore, log),
	}, validator, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting pagemd platform api", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	stopWorker()
}
