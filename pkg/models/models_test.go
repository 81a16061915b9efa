package models_test

import (
	"testing"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAutomation() *models.Automation {
	return &models.Automation{
		ID:      "auto-1",
		UserID:  "user-1",
		Name:    "Welcome",
		Enabled: true,
		Status:  models.AutomationStatusActive,
		Trigger: models.Trigger{ID: "trigger-1", Type: "subscriber.created"},
		Nodes: map[string]models.Node{
			"email-1": {ID: "email-1", Type: models.NodeTypeEmail, Next: "delay-1"},
			"delay-1": {ID: "delay-1", Type: models.NodeTypeDelay, Next: "cond-1"},
			"cond-1": {
				ID:       "cond-1",
				Type:     models.NodeTypeCondition,
				Branches: &models.Branches{True: "end-1", False: "end-1"},
			},
			"end-1": {ID: "end-1", Type: models.NodeTypeEnd},
		},
		EditorData: models.EditorData{Parents: map[string]string{
			"email-1": "trigger-1",
			"delay-1": "email-1",
			"cond-1":  "delay-1",
			"end-1":   "cond-1",
		}},
	}
}

func TestAutomation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *models.Automation)
		wantErr error
	}{
		{name: "valid", mutate: func(*models.Automation) {}},
		{
			name:    "missing trigger id",
			mutate:  func(a *models.Automation) { a.Trigger.ID = "" },
			wantErr: models.ErrMissingTrigger,
		},
		{
			name: "key mismatch",
			mutate: func(a *models.Automation) {
				a.Nodes["end-1"] = models.Node{ID: "end-2", Type: models.NodeTypeEnd}
			},
			wantErr: models.ErrNodeIDMismatch,
		},
		{
			name: "dangling next",
			mutate: func(a *models.Automation) {
				a.Nodes["email-1"] = models.Node{ID: "email-1", Type: models.NodeTypeEmail, Next: "ghost"}
			},
			wantErr: models.ErrDanglingNode,
		},
		{
			name: "next and branches",
			mutate: func(a *models.Automation) {
				node := a.Nodes["cond-1"]
				node.Next = "end-1"
				a.Nodes["cond-1"] = node
			},
			wantErr: models.ErrAmbiguousSuccessor,
		},
		{
			name:    "two start nodes",
			mutate:  func(a *models.Automation) { a.EditorData.Parents["delay-1"] = "trigger-1" },
			wantErr: models.ErrMultipleStartNodes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAutomation()
			tt.mutate(a)

			err := a.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAutomation_StartNodeIDs(t *testing.T) {
	a := newTestAutomation()
	assert.Equal(t, []string{"email-1"}, a.StartNodeIDs())

	delete(a.EditorData.Parents, "email-1")
	assert.Empty(t, a.StartNodeIDs())
}

func TestAutomation_IsRunnable(t *testing.T) {
	a := newTestAutomation()
	assert.True(t, a.IsRunnable())

	a.Enabled = false
	assert.False(t, a.IsRunnable())

	a.Enabled = true
	a.Status = models.AutomationStatusDraft
	assert.False(t, a.IsRunnable())
}

func TestNode_Successors(t *testing.T) {
	assert.Equal(t, []string{"b"}, models.Node{Next: "b"}.Successors())
	assert.Equal(t, []string{"t", "f"}, models.Node{Branches: &models.Branches{True: "t", False: "f"}}.Successors())
	assert.True(t, models.Node{Type: models.NodeTypeEnd}.IsTerminal())
}

func TestExecutionMachine_Transitions(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	resumeAt := now.Add(time.Hour)

	exec := models.NewPausedExecution("auto-1", "sub-1", "node-2", resumeAt, now)
	machine := models.NewExecutionMachine(exec)

	assert.False(t, exec.IsDue(now))
	assert.True(t, exec.IsDue(resumeAt))

	require.ErrorIs(t, machine.Fire(models.TriggerComplete, now), models.ErrInvalidTransition)

	require.NoError(t, machine.Fire(models.TriggerClaim, resumeAt))
	assert.Equal(t, models.ExecutionStatusActive, exec.Status)
	assert.Nil(t, exec.ResumeAt)

	require.ErrorIs(t, machine.Fire(models.TriggerClaim, resumeAt), models.ErrInvalidTransition)

	require.NoError(t, machine.Fail("smtp down", resumeAt))
	assert.Equal(t, models.ExecutionStatusFailed, exec.Status)
	assert.Equal(t, "smtp down", exec.Error)

	next := resumeAt.Add(24 * time.Hour)
	require.NoError(t, machine.Pause("node-3", next, resumeAt))
	assert.Equal(t, models.ExecutionStatusPaused, exec.Status)
	assert.Equal(t, "node-3", exec.CurrentNodeID)
	assert.Equal(t, next, *exec.ResumeAt)
	assert.Empty(t, exec.Error)

	require.NoError(t, machine.Pause("node-4", next, resumeAt))
	assert.Equal(t, "node-4", exec.CurrentNodeID)
}

func TestSubscriber_Variables(t *testing.T) {
	s := &models.Subscriber{
		ID:           "sub-1",
		Email:        "ada@example.com",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		CustomFields: map[string]any{"plan": "pro"},
	}

	vars := s.Variables()
	assert.Equal(t, "Ada Lovelace", vars["full_name"])
	assert.Equal(t, "pro", vars["fields"].(map[string]any)["plan"])
}
