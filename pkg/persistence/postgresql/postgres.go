// Package postgresql provides PostgreSQL persistence implementation for automations and executions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/persistence/sqlbase"
	_ "github.com/lib/pq" // registers the postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	automations *AutomationRepository
	executions  *ExecutionRepository
	actionLogs  *ActionLogRepository
	sends       *SendRepository
	subscribers *SubscriberRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")

	// Initialize components
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:          database,
		logger:      logger,
		automations: NewAutomationRepository(database, logger),
		executions:  NewExecutionRepository(database, logger),
		actionLogs:  NewActionLogRepository(database, logger),
		sends:       NewSendRepository(database),
		subscribers: NewSubscriberRepository(database),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

//nolint:ireturn
func (p *Persistence) AutomationRepository() persistence.AutomationRepository { return p.automations }

//nolint:ireturn
func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository { return p.executions }

//nolint:ireturn
func (p *Persistence) ActionLogRepository() persistence.ActionLogRepository { return p.actionLogs }

//nolint:ireturn
func (p *Persistence) SendRepository() persistence.SendRepository { return p.sends }

//nolint:ireturn
func (p *Persistence) SubscriberRepository() persistence.SubscriberRepository { return p.subscribers }
