package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/opsgrade/opsgrade/internal/assess"
	"github.com/opsgrade/opsgrade/internal/auth"
	"github.com/opsgrade/opsgrade/internal/bundle"
	"github.com/opsgrade/opsgrade/internal/config"
	"github.com/opsgrade/opsgrade/internal/credentials"
	"github.com/opsgrade/opsgrade/internal/definition"
	"github.com/opsgrade/opsgrade/internal/dispatch"
	"github.com/opsgrade/opsgrade/internal/httpserver"
	"github.com/opsgrade/opsgrade/internal/metrics"
	"github.com/opsgrade/opsgrade/internal/results"
	"github.com/opsgrade/opsgrade/internal/sandbox"
	"github.com/opsgrade/opsgrade/internal/subjects"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	ctx := context.Background()

	blobs, err := bundle.NewS3BlobStore(ctx, cfg.BundleBucket, cfg.BundlePrefix)
	if err != nil {
		log.Fatalf("init bundle store: %v", err)
	}
	broker, err := credentials.NewBrokerFromEnv(ctx, credentials.BrokerConfig{
		ConfirmationSecret: cfg.ConfirmationSecret,
		SessionDuration:    cfg.SessionDuration,
	})
	if err != nil {
		log.Fatalf("init credential broker: %v", err)
	}

	resultStore := results.NewPGStore(db)
	orchestrator := assess.NewOrchestrator(
		definition.NewResolver(definition.NewPGStore(db)),
		bundle.NewLoader(blobs),
		broker,
		sandbox.New(),
		resultStore,
		metrics.LogSink{},
		assess.OrchestratorConfig{
			Targets: assess.TargetConfig{
				RoleARNPattern:   cfg.RoleARNPattern,
				StackNamePattern: cfg.StackNamePattern,
			},
			EvalConcurrency: cfg.EvalConcurrency,
		},
	)

	normalizer := dispatch.NewNormalizer(subjects.NewPGQuery(db), cfg.ResourceNamePrefix, cfg.DefaultDefinitionID)
	dispatcher := dispatch.NewDispatcher(normalizer, orchestrator, dispatch.DispatcherConfig{
		MaxInFlight: int64(cfg.DispatchMaxInFlight),
	})

	var verifier httpserver.Authenticator
	if cfg.AuthSecret != "" {
		v, err := auth.NewVerifier(cfg.AuthSecret, cfg.AuthScope)
		if err != nil {
			log.Fatalf("init auth: %v", err)
		}
		verifier = v
	} else {
		log.Printf("warning: ASSESSOR_AUTH_SECRET unset, front door is unauthenticated")
	}

	server := httpserver.New(orchestrator, dispatcher, resultStore, verifier)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("Assessor service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, dispatcher)
}

func waitForShutdown(srv *http.Server, dispatcher *dispatch.Dispatcher) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	// Let in-flight assessments finish before the process exits.
	dispatcher.Wait()
}
