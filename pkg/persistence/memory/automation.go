package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

type automationRow struct {
	ID          string
	TriggerType string
	Automation  *models.Automation
}

func cloneAutomation(a *models.Automation) *models.Automation {
	clone := *a

	clone.Nodes = make(map[string]models.Node, len(a.Nodes))
	for id, node := range a.Nodes {
		if node.Branches != nil {
			branches := *node.Branches
			node.Branches = &branches
		}

		clone.Nodes[id] = node
	}

	clone.EditorData.Parents = make(map[string]string, len(a.EditorData.Parents))
	for child, parent := range a.EditorData.Parents {
		clone.EditorData.Parents[child] = parent
	}

	return &clone
}

type AutomationRepository struct {
	p *Persistence
}

func (r *AutomationRepository) Save(_ context.Context, automation *models.Automation) error {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	now := r.p.now()
	stored := cloneAutomation(automation)

	if existing, err := txn.First(tableAutomations, "id", automation.ID); err == nil && existing != nil {
		stored.CreatedAt = existing.(*automationRow).Automation.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	stored.UpdatedAt = now

	err := txn.Insert(tableAutomations, &automationRow{ID: stored.ID, TriggerType: stored.Trigger.Type, Automation: stored})
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	txn.Commit()

	automation.CreatedAt = stored.CreatedAt
	automation.UpdatedAt = stored.UpdatedAt

	return nil
}

func (r *AutomationRepository) ByID(_ context.Context, id string) (*models.Automation, error) {
	txn := r.p.db.Txn(false)

	raw, err := txn.First(tableAutomations, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}

	if raw == nil {
		return nil, persistence.NewAutomationError("ByID", id, persistence.ErrAutomationNotFound)
	}

	return cloneAutomation(raw.(*automationRow).Automation), nil
}

func (r *AutomationRepository) ActiveByTriggerType(_ context.Context, triggerType string) ([]*models.Automation, error) {
	txn := r.p.db.Txn(false)

	it, err := txn.Get(tableAutomations, "trigger_type", triggerType)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	var automations []*models.Automation

	for raw := it.Next(); raw != nil; raw = it.Next() {
		automation := raw.(*automationRow).Automation
		if automation.IsRunnable() {
			automations = append(automations, cloneAutomation(automation))
		}
	}

	return automations, nil
}

func (r *AutomationRepository) List(_ context.Context) ([]*models.Automation, error) {
	txn := r.p.db.Txn(false)

	it, err := txn.Get(tableAutomations, "id")
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}

	var automations []*models.Automation
	for raw := it.Next(); raw != nil; raw = it.Next() {
		automations = append(automations, cloneAutomation(raw.(*automationRow).Automation))
	}

	sort.Slice(automations, func(i, j int) bool { return automations[i].ID < automations[j].ID })

	return automations, nil
}
