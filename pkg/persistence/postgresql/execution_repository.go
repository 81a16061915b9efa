package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

const executionColumns = `automation_id, subscriber_id, current_node_id, status, resume_at,
	context, error, created_at, updated_at`

// ExecutionRepository handles execution-related database operations. Status
// guards live in the WHERE clauses so concurrent workers race safely.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Upsert writes the row for (automation, subscriber), replacing any prior state.
func (r *ExecutionRepository) Upsert(ctx context.Context, execution *models.AutomationExecution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	now := time.Now().UTC()

	createdAt := execution.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO automation_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (automation_id, subscriber_id) DO UPDATE SET
			current_node_id = EXCLUDED.current_node_id,
			status = EXCLUDED.status,
			resume_at = EXCLUDED.resume_at,
			context = EXCLUDED.context,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.AutomationID,
		execution.SubscriberID,
		execution.CurrentNodeID,
		execution.Status,
		execution.ResumeAt,
		contextJSON,
		execution.Error,
		createdAt,
		now,
	)
	if err != nil {
		return persistence.NewExecutionError("Upsert", execution.AutomationID, execution.SubscriberID, err)
	}

	return nil
}

// FindDue retrieves paused executions whose resume time has passed, oldest first.
func (r *ExecutionRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.AutomationExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM automation_executions
		WHERE status = 'PAUSED' AND resume_at <= $1
		ORDER BY resume_at, automation_id, subscriber_id
		LIMIT NULLIF($2, 0)`

	return r.query(ctx, query, now, limit)
}

// Claim moves a due paused execution to ACTIVE. It returns nil when the row
// was already claimed, is not due, or does not exist.
func (r *ExecutionRepository) Claim(ctx context.Context, automationID, subscriberID string, now time.Time) (*models.AutomationExecution, error) {
	query := `
		UPDATE automation_executions
		SET status = 'ACTIVE', resume_at = NULL, updated_at = NOW()
		WHERE automation_id = $1 AND subscriber_id = $2
			AND status = 'PAUSED' AND resume_at <= $3
		RETURNING ` + executionColumns

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, automationID, subscriberID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // a lost claim is not an error
		}

		return nil, persistence.NewExecutionError("Claim", automationID, subscriberID, err)
	}

	return execution, nil
}

// Complete moves an ACTIVE execution to COMPLETED.
func (r *ExecutionRepository) Complete(ctx context.Context, automationID, subscriberID string) (bool, error) {
	query := `
		UPDATE automation_executions
		SET status = 'COMPLETED', resume_at = NULL, updated_at = NOW()
		WHERE automation_id = $1 AND subscriber_id = $2 AND status = 'ACTIVE'`

	return r.exec(ctx, "Complete", automationID, subscriberID, query, automationID, subscriberID)
}

// Fail moves an ACTIVE execution to FAILED.
func (r *ExecutionRepository) Fail(ctx context.Context, automationID, subscriberID, reason string) (bool, error) {
	query := `
		UPDATE automation_executions
		SET status = 'FAILED', resume_at = NULL, error = $3, updated_at = NOW()
		WHERE automation_id = $1 AND subscriber_id = $2 AND status = 'ACTIVE'`

	return r.exec(ctx, "Fail", automationID, subscriberID, query, automationID, subscriberID, reason)
}

func (r *ExecutionRepository) exec(ctx context.Context, op, automationID, subscriberID, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, persistence.NewExecutionError(op, automationID, subscriberID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError(op, automationID, subscriberID, err)
	}

	return affected == 1, nil
}

// ByKey retrieves the execution of one subscriber in one automation.
func (r *ExecutionRepository) ByKey(ctx context.Context, automationID, subscriberID string) (*models.AutomationExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM automation_executions
		WHERE automation_id = $1 AND subscriber_id = $2`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, automationID, subscriberID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ByKey", automationID, subscriberID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ByKey", automationID, subscriberID, err)
	}

	return execution, nil
}

// ListByAutomation retrieves every execution of an automation.
func (r *ExecutionRepository) ListByAutomation(ctx context.Context, automationID string) ([]*models.AutomationExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM automation_executions
		WHERE automation_id = $1
		ORDER BY subscriber_id`

	return r.query(ctx, query, automationID)
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.AutomationExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.AutomationExecution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.AutomationExecution, error) {
	var (
		execution   models.AutomationExecution
		resumeAt    sql.NullTime
		contextJSON []byte
	)

	err := row.Scan(
		&execution.AutomationID,
		&execution.SubscriberID,
		&execution.CurrentNodeID,
		&execution.Status,
		&resumeAt,
		&contextJSON,
		&execution.Error,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if resumeAt.Valid {
		at := resumeAt.Time
		execution.ResumeAt = &at
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
		}
	}

	return &execution, nil
}
