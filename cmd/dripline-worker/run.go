package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dripline/dripline/pkg/channels/kafka"
	"github.com/dripline/dripline/pkg/cmd"
	mail "github.com/dripline/dripline/pkg/email"
	"github.com/dripline/dripline/pkg/fixtures"
	"github.com/dripline/dripline/pkg/log"
	"github.com/dripline/dripline/pkg/otelhelper"
	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/dripline/dripline/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("dripline-worker").With("worker_id", workerID)

	logger.InfoContext(ctx, "Initializing dripline worker")

	if command.Bool("tracing") {
		tp, err := otelhelper.NewTracerProvider(ctx, "dripline-worker")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}

		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
			}
		}()
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), kafka.ParseBrokers(command.String("kafka-brokers")), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	var templates mail.TemplateStore

	if path := command.String("file"); path != "" {
		bundle, err := fixtures.Load(path)
		if err != nil {
			return err
		}

		templates = bundle.TemplateStore()
	}

	reg := cmd.NewRegistry(logger)

	engine := workflow.NewEngine(workflow.Config{
		Persistence:          persistence,
		Registry:             reg,
		EventBus:             eventBus,
		Graphs:               workflow.NewGraphCache(workflow.DefaultGraphTTL),
		Logger:               logger,
		SkipDisabledOnResume: command.Bool("skip-disabled-on-resume"),
	})

	cmd.RegisterNodes(reg, logger, cmd.NodeDeps{
		Persistence: persistence,
		Templates:   templates,
		Tracker:     mail.Tracker{BaseURL: command.String("tracking-base-url")},
		Scheduler:   engine,
	})

	var locker scheduler.Locker = scheduler.NoopLocker{}

	if redisURL := command.String("redis-url"); redisURL != "" {
		client, err := scheduler.NewRedisClient(ctx, redisURL)
		if err != nil {
			return err
		}

		defer client.Close()

		locker = scheduler.NewRedisLocker(client, "")
	}

	poller := scheduler.New(scheduler.Config{
		Executions: persistence.ExecutionRepository(),
		Resumer:    engine,
		Locker:     locker,
		Interval:   command.Duration("scheduler-interval"),
		BatchSize:  command.Int("scheduler-batch"),
		Logger:     logger,
	})

	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to subscribe engine: %w", err)
	}

	if err := poller.Start(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.InfoContext(ctx, "Shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), command.Duration("shutdown-timeout"))
	defer cancel()

	poller.Stop(shutdownCtx)

	return nil
}
