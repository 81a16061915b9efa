package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/hashicorp/go-memdb"
)

type executionRow struct {
	Key          string
	AutomationID string
	Status       string
	Execution    *models.AutomationExecution
}

func newExecutionRow(exec *models.AutomationExecution) *executionRow {
	return &executionRow{
		Key:          exec.Key(),
		AutomationID: exec.AutomationID,
		Status:       string(exec.Status),
		Execution:    exec,
	}
}

func cloneExecution(e *models.AutomationExecution) *models.AutomationExecution {
	clone := *e

	if e.ResumeAt != nil {
		resumeAt := *e.ResumeAt
		clone.ResumeAt = &resumeAt
	}

	clone.Context = make(map[string]any, len(e.Context))
	for k, v := range e.Context {
		clone.Context[k] = v
	}

	return &clone
}

type ExecutionRepository struct {
	p *Persistence
}

func (r *ExecutionRepository) Upsert(_ context.Context, execution *models.AutomationExecution) error {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	stored := cloneExecution(execution)
	stored.UpdatedAt = r.p.now()

	existing, err := txn.First(tableExecutions, "id", execution.Key())
	if err != nil {
		return persistence.NewExecutionError("Upsert", execution.AutomationID, execution.SubscriberID, err)
	}

	if existing != nil {
		stored.CreatedAt = existing.(*executionRow).Execution.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}

	if err := txn.Insert(tableExecutions, newExecutionRow(stored)); err != nil {
		return persistence.NewExecutionError("Upsert", execution.AutomationID, execution.SubscriberID, err)
	}

	txn.Commit()

	return nil
}

func (r *ExecutionRepository) FindDue(_ context.Context, now time.Time, limit int) ([]*models.AutomationExecution, error) {
	txn := r.p.db.Txn(false)

	it, err := txn.Get(tableExecutions, "status", string(models.ExecutionStatusPaused))
	if err != nil {
		return nil, fmt.Errorf("failed to query due executions: %w", err)
	}

	var due []*models.AutomationExecution

	for raw := it.Next(); raw != nil; raw = it.Next() {
		exec := raw.(*executionRow).Execution
		if exec.IsDue(now) {
			due = append(due, cloneExecution(exec))
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].ResumeAt.Equal(*due[j].ResumeAt) {
			return due[i].Key() < due[j].Key()
		}

		return due[i].ResumeAt.Before(*due[j].ResumeAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

// transition applies fire to a copy of the stored row inside one write
// transaction. It reports false when the row is missing or fire refuses.
func (r *ExecutionRepository) transition(
	op, automationID, subscriberID string,
	fire func(exec *models.AutomationExecution, machine *models.ExecutionMachine) bool,
) (*models.AutomationExecution, error) {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableExecutions, "id", models.ExecutionKey(automationID, subscriberID))
	if err != nil {
		return nil, persistence.NewExecutionError(op, automationID, subscriberID, err)
	}

	if raw == nil {
		return nil, nil
	}

	exec := cloneExecution(raw.(*executionRow).Execution)
	if !fire(exec, models.NewExecutionMachine(exec)) {
		return nil, nil
	}

	if err := txn.Insert(tableExecutions, newExecutionRow(exec)); err != nil {
		return nil, persistence.NewExecutionError(op, automationID, subscriberID, err)
	}

	txn.Commit()

	return cloneExecution(exec), nil
}

func (r *ExecutionRepository) Claim(_ context.Context, automationID, subscriberID string, now time.Time) (*models.AutomationExecution, error) {
	return r.transition("Claim", automationID, subscriberID, func(exec *models.AutomationExecution, machine *models.ExecutionMachine) bool {
		return exec.IsDue(now) && machine.Fire(models.TriggerClaim, r.p.now()) == nil
	})
}

func (r *ExecutionRepository) Complete(_ context.Context, automationID, subscriberID string) (bool, error) {
	exec, err := r.transition("Complete", automationID, subscriberID, func(_ *models.AutomationExecution, machine *models.ExecutionMachine) bool {
		return machine.Fire(models.TriggerComplete, r.p.now()) == nil
	})

	return exec != nil, err
}

func (r *ExecutionRepository) Fail(_ context.Context, automationID, subscriberID, reason string) (bool, error) {
	exec, err := r.transition("Fail", automationID, subscriberID, func(_ *models.AutomationExecution, machine *models.ExecutionMachine) bool {
		return machine.Fail(reason, r.p.now()) == nil
	})

	return exec != nil, err
}

func (r *ExecutionRepository) ByKey(_ context.Context, automationID, subscriberID string) (*models.AutomationExecution, error) {
	txn := r.p.db.Txn(false)

	raw, err := txn.First(tableExecutions, "id", models.ExecutionKey(automationID, subscriberID))
	if err != nil {
		return nil, persistence.NewExecutionError("ByKey", automationID, subscriberID, err)
	}

	if raw == nil {
		return nil, persistence.NewExecutionError("ByKey", automationID, subscriberID, persistence.ErrExecutionNotFound)
	}

	return cloneExecution(raw.(*executionRow).Execution), nil
}

func (r *ExecutionRepository) ListByAutomation(_ context.Context, automationID string) ([]*models.AutomationExecution, error) {
	txn := r.p.db.Txn(false)

	it, err := txn.Get(tableExecutions, "automation", automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return collectExecutions(it), nil
}

func collectExecutions(it memdb.ResultIterator) []*models.AutomationExecution {
	var executions []*models.AutomationExecution
	for raw := it.Next(); raw != nil; raw = it.Next() {
		executions = append(executions, cloneExecution(raw.(*executionRow).Execution))
	}

	sort.Slice(executions, func(i, j int) bool { return executions[i].SubscriberID < executions[j].SubscriberID })

	return executions
}
