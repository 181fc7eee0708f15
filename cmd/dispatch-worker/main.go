package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/opsgrade/opsgrade/internal/assess"
	"github.com/opsgrade/opsgrade/internal/bundle"
	"github.com/opsgrade/opsgrade/internal/config"
	"github.com/opsgrade/opsgrade/internal/credentials"
	"github.com/opsgrade/opsgrade/internal/definition"
	"github.com/opsgrade/opsgrade/internal/dispatch"
	"github.com/opsgrade/opsgrade/internal/metrics"
	"github.com/opsgrade/opsgrade/internal/results"
	"github.com/opsgrade/opsgrade/internal/sandbox"
	"github.com/opsgrade/opsgrade/internal/subjects"
)

// The dispatch worker runs the triggers that are not on the request path:
// the scheduled sweep ticker and the resource-change Kafka consumer. It
// shares the orchestrator wiring with the front-door service but exposes no
// HTTP surface.
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	orchestrator := assess.NewOrchestrator(
		definition.NewResolver(definition.NewPGStore(db)),
		bundle.NewLoader(blobs),
		broker,
		sandbox.New(),
		results.NewPGStore(db),
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

	if len(cfg.ScheduleDefinitions) > 0 {
		scheduler := dispatch.NewScheduler(dispatcher, cfg.ScheduleDefinitions, cfg.ScheduleInterval)
		go scheduler.Run(ctx)
		log.Printf("scheduled sweeps every %s for %v", cfg.ScheduleInterval, cfg.ScheduleDefinitions)
	}

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := dispatch.NewKafkaConsumer(dispatch.KafkaConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, dispatcher)
		if err != nil {
			log.Fatalf("init kafka consumer: %v", err)
		}
		defer consumer.Close()
		go func() {
			log.Printf("consuming resource changes from %s", cfg.KafkaTopic)
			if err := consumer.Consume(ctx); err != nil {
				log.Printf("kafka consumer stopped: %v", err)
				cancel()
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	cancel()
	dispatcher.Wait()
}
