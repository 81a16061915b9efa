package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	if _, err := maxprocs.Set(); err != nil {
		slog.Warn("Failed to set GOMAXPROCS", "error", err)
	}

	err := newApp().Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("dripline-worker failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:                  "dripline-worker",
		EnableShellCompletion: true,
		Usage:                 "Run automations and manage their definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			validateCommand(),
			seedCommand(),
		},
	}
}

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "database-url",
		Usage:    "Persistence URL (postgres://, mongodb://, memory://)",
		Required: true,
		Sources:  cli.EnvVars("DATABASE_URL"),
	}
}

func fixturesFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "YAML file with automations, subscribers and templates",
		Required: required,
		Sources:  cli.EnvVars("FIXTURES_FILE"),
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Subscribe to domain events and resume paused executions",
		Flags: []cli.Flag{
			databaseFlag(),
			fixturesFlag(false),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "scheduler-interval",
				Usage:   "How often due executions are polled",
				Value:   scheduler.DefaultInterval,
				Sources: cli.EnvVars("SCHEDULER_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "scheduler-batch",
				Usage:   "Maximum due executions resumed per poll",
				Value:   scheduler.DefaultBatchSize,
				Sources: cli.EnvVars("SCHEDULER_BATCH_SIZE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the scheduler lease; empty lets every replica poll",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "tracking-base-url",
				Usage:   "Base URL of the open/click tracking service",
				Sources: cli.EnvVars("TRACKING_BASE_URL"),
			},
			&cli.BoolFlag{
				Name:    "skip-disabled-on-resume",
				Usage:   "Fail paused executions whose automation was disabled",
				Sources: cli.EnvVars("SKIP_DISABLED_ON_RESUME"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_TRACING_ENABLED"),
			},
			&cli.DurationFlag{
				Name:    "shutdown-timeout",
				Usage:   "How long to wait for a running poll on shutdown",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
			},
		},
		Action: run,
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Check automation definitions without running them",
		Flags:  []cli.Flag{fixturesFlag(true)},
		Action: validate,
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:   "seed",
		Usage:  "Load automations and subscribers into the configured persistence",
		Flags:  []cli.Flag{databaseFlag(), fixturesFlag(true)},
		Action: seed,
	}
}
