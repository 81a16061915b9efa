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

const automationColumns = `id, user_id, name, enabled, status, trigger_id, trigger_type,
	trigger_params, nodes, editor_data, created_at, updated_at`

// AutomationRepository handles automation-related database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

// Save inserts or replaces an automation, keeping its original creation time.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	triggerParamsJSON, err := json.Marshal(automation.Trigger.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger params: %w", err)
	}

	nodesJSON, err := json.Marshal(automation.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	editorDataJSON, err := json.Marshal(automation.EditorData)
	if err != nil {
		return fmt.Errorf("failed to marshal editor data: %w", err)
	}

	now := time.Now().UTC()

	createdAt := automation.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO automations (` + automationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			status = EXCLUDED.status,
			trigger_id = EXCLUDED.trigger_id,
			trigger_type = EXCLUDED.trigger_type,
			trigger_params = EXCLUDED.trigger_params,
			nodes = EXCLUDED.nodes,
			editor_data = EXCLUDED.editor_data,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		automation.ID,
		automation.UserID,
		automation.Name,
		automation.Enabled,
		automation.Status,
		automation.Trigger.ID,
		automation.Trigger.Type,
		triggerParamsJSON,
		nodesJSON,
		editorDataJSON,
		createdAt,
		now,
	).Scan(&automation.CreatedAt, &automation.UpdatedAt)
	if err != nil {
		return persistence.NewAutomationError("Save", automation.ID, err)
	}

	return nil
}

// ByID retrieves an automation by its ID.
func (r *AutomationRepository) ByID(ctx context.Context, id string) (*models.Automation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+automationColumns+` FROM automations WHERE id = $1`, id)

	automation, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAutomationError("ByID", id, persistence.ErrAutomationNotFound)
		}

		return nil, persistence.NewAutomationError("ByID", id, err)
	}

	return automation, nil
}

// ActiveByTriggerType retrieves enabled ACTIVE automations for a trigger type.
func (r *AutomationRepository) ActiveByTriggerType(ctx context.Context, triggerType string) ([]*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations
		WHERE trigger_type = $1 AND enabled AND status = 'ACTIVE'
		ORDER BY created_at`

	return r.query(ctx, query, triggerType)
}

// List retrieves every automation.
func (r *AutomationRepository) List(ctx context.Context) ([]*models.Automation, error) {
	return r.query(ctx, `SELECT `+automationColumns+` FROM automations ORDER BY id`)
}

func (r *AutomationRepository) query(ctx context.Context, query string, args ...any) ([]*models.Automation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var automations []*models.Automation

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate automations: %w", err)
	}

	return automations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row scanner) (*models.Automation, error) {
	var (
		automation                                   models.Automation
		triggerParamsJSON, nodesJSON, editorDataJSON []byte
	)

	err := row.Scan(
		&automation.ID,
		&automation.UserID,
		&automation.Name,
		&automation.Enabled,
		&automation.Status,
		&automation.Trigger.ID,
		&automation.Trigger.Type,
		&triggerParamsJSON,
		&nodesJSON,
		&editorDataJSON,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerParamsJSON) > 0 {
		if err := json.Unmarshal(triggerParamsJSON, &automation.Trigger.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger params: %w", err)
		}
	}

	if err := json.Unmarshal(nodesJSON, &automation.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(editorDataJSON, &automation.EditorData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal editor data: %w", err)
	}

	return &automation, nil
}
