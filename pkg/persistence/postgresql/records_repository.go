package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

// ActionLogRepository appends and lists action log entries.
type ActionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewActionLogRepository(db *sql.DB, logger *slog.Logger) *ActionLogRepository {
	return &ActionLogRepository{db: db, logger: logger}
}

func (r *ActionLogRepository) Append(ctx context.Context, entry *models.ActionLog) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	inputJSON, err := json.Marshal(entry.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	outputJSON, err := json.Marshal(entry.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	query := `
		INSERT INTO action_logs (id, automation_id, node_id, subscriber_id, status, input, output, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AutomationID,
		entry.NodeID,
		entry.SubscriberID,
		entry.Status,
		inputJSON,
		outputJSON,
		entry.Error,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append action log: %w", err)
	}

	return nil
}

func (r *ActionLogRepository) ListByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ActionLog, error) {
	query := `
		SELECT id, automation_id, node_id, subscriber_id, status, input, output, error, created_at
		FROM action_logs
		WHERE automation_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)
	`

	rows, err := r.db.QueryContext(ctx, query, automationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query action logs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var logs []*models.ActionLog

	for rows.Next() {
		var (
			entry                 models.ActionLog
			inputJSON, outputJSON []byte
		)

		err := rows.Scan(&entry.ID, &entry.AutomationID, &entry.NodeID, &entry.SubscriberID,
			&entry.Status, &inputJSON, &outputJSON, &entry.Error, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action log: %w", err)
		}

		if err := unmarshalMap(inputJSON, &entry.Input); err != nil {
			return nil, err
		}

		if err := unmarshalMap(outputJSON, &entry.Output); err != nil {
			return nil, err
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action logs: %w", err)
	}

	return logs, nil
}

func unmarshalMap(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal json column: %w", err)
	}

	return nil
}

// SendRepository stores send records and their engagement counters.
type SendRepository struct {
	db *sql.DB
}

func NewSendRepository(db *sql.DB) *SendRepository {
	return &SendRepository{db: db}
}

func (r *SendRepository) Create(ctx context.Context, record *models.SendRecord) error {
	query := `
		INSERT INTO send_records (id, automation_id, node_id, subscriber_id, status, open_count, click_count, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.AutomationID,
		record.NodeID,
		record.SubscriberID,
		record.Status,
		record.OpenCount,
		record.ClickCount,
		record.Error,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create send record: %w", err)
	}

	return nil
}

func (r *SendRepository) Latest(ctx context.Context, automationID, nodeID, subscriberID string) (*models.SendRecord, error) {
	query := `
		SELECT id, automation_id, node_id, subscriber_id, status, open_count, click_count, error, created_at, updated_at
		FROM send_records
		WHERE automation_id = $1 AND node_id = $2 AND subscriber_id = $3
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`

	var record models.SendRecord

	err := r.db.QueryRowContext(ctx, query, automationID, nodeID, subscriberID).Scan(
		&record.ID, &record.AutomationID, &record.NodeID, &record.SubscriberID, &record.Status,
		&record.OpenCount, &record.ClickCount, &record.Error, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("send %s/%s/%s: %w", automationID, nodeID, subscriberID, persistence.ErrSendNotFound)
		}

		return nil, fmt.Errorf("failed to get send record: %w", err)
	}

	return &record, nil
}

func (r *SendRepository) update(ctx context.Context, id, set string, args ...any) error {
	query := `UPDATE send_records SET ` + set + `, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update send record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update send record: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("send %s: %w", id, persistence.ErrSendNotFound)
	}

	return nil
}

func (r *SendRepository) MarkSent(ctx context.Context, id string) error {
	return r.update(ctx, id, `status = 'sent', error = ''`)
}

func (r *SendRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.update(ctx, id, `status = 'failed', error = $2`, reason)
}

func (r *SendRepository) RecordOpen(ctx context.Context, id string) error {
	return r.update(ctx, id, `open_count = open_count + 1`)
}

func (r *SendRepository) RecordClick(ctx context.Context, id string) error {
	return r.update(ctx, id, `click_count = click_count + 1`)
}

// SubscriberRepository is the subscriber directory view.
type SubscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) Save(ctx context.Context, subscriber *models.Subscriber) error {
	listsJSON, err := json.Marshal(subscriber.Lists)
	if err != nil {
		return fmt.Errorf("failed to marshal lists: %w", err)
	}

	fieldsJSON, err := json.Marshal(subscriber.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}

	query := `
		INSERT INTO subscribers (id, user_id, email, first_name, last_name, lists, custom_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			lists = EXCLUDED.lists,
			custom_fields = EXCLUDED.custom_fields
	`

	_, err = r.db.ExecContext(ctx, query,
		subscriber.ID, subscriber.UserID, subscriber.Email, subscriber.FirstName, subscriber.LastName, listsJSON, fieldsJSON)
	if err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}

	return nil
}

func (r *SubscriberRepository) ByID(ctx context.Context, id string) (*models.Subscriber, error) {
	var (
		subscriber            models.Subscriber
		listsJSON, fieldsJSON []byte
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, first_name, last_name, lists, custom_fields FROM subscribers WHERE id = $1`, id,
	).Scan(&subscriber.ID, &subscriber.UserID, &subscriber.Email, &subscriber.FirstName, &subscriber.LastName, &listsJSON, &fieldsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscriber %s: %w", id, persistence.ErrSubscriberNotFound)
		}

		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}

	if len(listsJSON) > 0 {
		if err := json.Unmarshal(listsJSON, &subscriber.Lists); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lists: %w", err)
		}
	}

	if err := unmarshalMap(fieldsJSON, &subscriber.CustomFields); err != nil {
		return nil, err
	}

	return &subscriber, nil
}
