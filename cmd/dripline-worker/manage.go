package main

import (
	"context"
	"fmt"

	"github.com/dripline/dripline/pkg/cmd"
	"github.com/dripline/dripline/pkg/fixtures"
	"github.com/dripline/dripline/pkg/log"
	"github.com/dripline/dripline/pkg/persistence/memory"
	cli "github.com/urfave/cli/v3"
)

// validate checks a fixtures file against the registered node schemas.
// Handlers are bound to an in-memory store since nothing is executed.
func validate(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("validate")
	path := command.String("file")

	bundle, err := fixtures.Load(path)
	if err != nil {
		return err
	}

	store, err := memory.NewPersistence(logger)
	if err != nil {
		return err
	}

	reg := cmd.NewRegistry(logger)
	cmd.RegisterNodes(reg, logger, cmd.NodeDeps{Persistence: store})

	if err := bundle.Validate(reg); err != nil {
		return fmt.Errorf("%s is invalid:\n%w", path, err)
	}

	logger.InfoContext(ctx, "Fixtures are valid",
		"file", path,
		"automations", len(bundle.Automations),
		"subscribers", len(bundle.Subscribers),
		"templates", len(bundle.Templates))

	return nil
}

func seed(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("seed")

	bundle, err := fixtures.Load(command.String("file"))
	if err != nil {
		return err
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

	reg := cmd.NewRegistry(logger)
	cmd.RegisterNodes(reg, logger, cmd.NodeDeps{Persistence: persistence})

	if err := bundle.Validate(reg); err != nil {
		return err
	}

	if err := bundle.Seed(ctx, persistence); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Fixtures seeded",
		"automations", len(bundle.Automations),
		"subscribers", len(bundle.Subscribers))

	return nil
}
