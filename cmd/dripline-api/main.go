package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dripline/dripline/pkg/channels/kafka"
	"github.com/dripline/dripline/pkg/cmd"
	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/automaxprocs/maxprocs"
)

const defaultPort = 9091

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	if _, err := maxprocs.Set(); err != nil {
		slog.Warn("Failed to set GOMAXPROCS", "error", err)
	}

	command := &cli.Command{
		Name:                  "dripline-api",
		Usage:                 "Inspect automations and ingest domain events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (postgres://, mongodb://, memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel); empty disables POST /events",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("dripline-api")

			logger.InfoContext(ctx, "Initializing dripline API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			var bus eventbus.EventBus

			if provider := command.String("event-bus"); provider != "" {
				bus, err = cmd.NewEventBus(provider, kafka.ParseBrokers(command.String("kafka-brokers")), logger)
				if err != nil {
					return err
				}

				defer func() {
					if err := bus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			reg := cmd.NewRegistry(logger)
			cmd.RegisterNodes(reg, logger, cmd.NodeDeps{Persistence: persistence})

			api := NewAPI(logger, persistence, reg, bus)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		slog.Error("dripline-api failed", "error", err)
		os.Exit(1)
	}
}
