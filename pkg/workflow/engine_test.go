package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dripline/dripline/pkg/channels/gochannel"
	"github.com/dripline/dripline/pkg/eventbus"
	"github.com/dripline/dripline/pkg/events"
	"github.com/dripline/dripline/pkg/mocks"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/testutil"
	"github.com/dripline/dripline/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func welcomeEvent(subscriberID string) *events.DomainEvent {
	return events.NewDomainEvent(events.SubscriberCreatedEvent, events.Payload{SubscriberID: subscriberID, UserID: "user-1"})
}

func engagementAutomation() *models.Automation {
	return testutil.CreateTestAutomation(
		testutil.WithChain(
			testutil.EmailNode("welcome"),
			testutil.DelayNode("wait", 1, "days"),
			testutil.ConditionNode("opened", "thanks", "reminder"),
		),
		testutil.WithNode(models.Node{ID: "thanks", Type: models.NodeTypeEmail, Params: map[string]any{"subject": "Thanks", "body": "<p>thanks</p>"}, Next: "end"}),
		testutil.WithNode(models.Node{ID: "reminder", Type: models.NodeTypeEmail, Params: map[string]any{"subject": "Reminder", "body": "<p>reminder</p>"}, Next: "end"}),
		testutil.WithNode(testutil.EndNode("end")),
	)
}

func TestEngine_EventPausesAtDelay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	automation := h.save(t, engagementAutomation())

	require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-1")))

	require.Len(t, h.sender.Messages(), 1)
	assert.Equal(t, "Hello Ada", h.sender.Messages()[0].Subject)

	execution, err := h.store.ExecutionRepository().ByKey(ctx, automation.ID, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)
	assert.Equal(t, "opened", execution.CurrentNodeID)
	assert.True(t, baseTime.Add(24*time.Hour).Equal(*execution.ResumeAt))
}

func TestEngine_ResumeTakesBranchOnEngagement(t *testing.T) {
	tests := []struct {
		name    string
		open    bool
		subject string
	}{
		{name: "opened", open: true, subject: "Thanks"},
		{name: "not opened", open: false, subject: "Reminder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			automation := h.save(t, engagementAutomation())

			require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-1")))

			if tt.open {
				send, err := h.store.SendRepository().Latest(ctx, automation.ID, "welcome", "sub-1")
				require.NoError(t, err)
				require.NoError(t, h.store.SendRepository().RecordOpen(ctx, send.ID))
			}

			h.now = baseTime.Add(25 * time.Hour)
			require.NoError(t, h.resume(t, automation.ID, "sub-1"))

			messages := h.sender.Messages()
			require.Len(t, messages, 2)
			assert.Equal(t, tt.subject, messages[1].Subject)

			execution, err := h.store.ExecutionRepository().ByKey(ctx, automation.ID, "sub-1")
			require.NoError(t, err)
			assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
			assert.Nil(t, execution.ResumeAt)
		})
	}
}

func TestEngine_NoStartNode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	automation := engagementAutomation()
	delete(automation.EditorData.Parents, "welcome")
	h.save(t, automation)

	result := h.engine.StartRun(ctx, automation, "sub-1")
	assert.Equal(t, workflow.OutcomeFailed, result.Outcome)
	assert.True(t, workflow.IsConfigurationError(result.Err))
	assert.Zero(t, result.Steps)

	require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-1")))
	assert.Empty(t, h.sender.Messages())
}

func TestEngine_DeliveryFailureAdvances(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.sender.Err = errors.New("smtp unavailable")

	automation := h.save(t, engagementAutomation())

	require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-1")))

	// the run reached the delay even though the email failed
	execution, err := h.store.ExecutionRepository().ByKey(ctx, automation.ID, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, execution.Status)

	logs, err := h.store.ActionLogRepository().ListByAutomation(ctx, automation.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusFailure, logs[0].Status)
}

func TestEngine_ScheduleTwiceKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.engine.Schedule(ctx, "auto-1", "sub-1", "first", map[string]any{"delayType": "period", "amount": 1, "unit": "hours"})
	require.NoError(t, err)

	h.now = baseTime.Add(time.Minute)

	_, err = h.engine.Schedule(ctx, "auto-1", "sub-1", "second", map[string]any{"delayType": "period", "amount": 2, "unit": "hours"})
	require.NoError(t, err)

	executions, err := h.store.ExecutionRepository().ListByAutomation(ctx, "auto-1")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, "second", executions[0].CurrentNodeID)
	assert.True(t, baseTime.Add(time.Minute+2*time.Hour).Equal(*executions[0].ResumeAt))
	assert.True(t, baseTime.Equal(executions[0].CreatedAt))
}

func TestEngine_ScheduleBadParamsFallsBack(t *testing.T) {
	h := newHarness(t)

	execution, err := h.engine.Schedule(context.Background(), "auto-1", "sub-1", "next", map[string]any{"delayType": "period", "amount": "soon"})
	require.NoError(t, err)
	assert.True(t, baseTime.Add(5*time.Minute).Equal(*execution.ResumeAt))
}

func TestEngine_DelayWithoutNextCompletesOnResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	automation := h.save(t, testutil.CreateTestAutomation(testutil.WithChain(testutil.DelayNode("wait", 10, "minutes"))))

	result := h.engine.StartRun(ctx, automation, "sub-1")
	assert.Equal(t, workflow.OutcomePaused, result.Outcome)

	h.now = baseTime.Add(10 * time.Minute)
	require.NoError(t, h.resume(t, automation.ID, "sub-1"))

	execution, err := h.store.ExecutionRepository().ByKey(ctx, automation.ID, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

// Disabling an automation does not stop executions already waiting.
func TestEngine_DisabledAutomationStillResumes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	automation := h.save(t, engagementAutomation())

	require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-1")))

	automation.Enabled = false
	h.save(t, automation)

	require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-2")))

	h.now = baseTime.Add(25 * time.Hour)
	require.NoError(t, h.resume(t, automation.ID, "sub-1"))
	assert.Len(t, h.sender.Messages(), 2)
}

func TestEngine_SkipDisabledOnResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(cfg *workflow.Config) { cfg.SkipDisabledOnResume = true })
	automation := h.save(t, engagementAutomation())

	require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-1")))

	automation.Enabled = false
	h.save(t, automation)

	h.now = baseTime.Add(25 * time.Hour)
	assert.ErrorIs(t, h.resume(t, automation.ID, "sub-1"), workflow.ErrAutomationDisabled)
	assert.Len(t, h.sender.Messages(), 1)
}

func TestEngine_ResumeMissingAutomation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.engine.Schedule(ctx, "ghost", "sub-1", "next", map[string]any{"delayType": "period", "amount": 1, "unit": "minutes"})
	require.NoError(t, err)

	h.now = baseTime.Add(time.Minute)
	err = h.resume(t, "ghost", "sub-1")
	assert.True(t, persistence.IsAutomationNotFound(err))
}

func TestEngine_InitializeOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := testutil.Logger()

	// lifecycle events are published from inside the handler, so the
	// blocking test channel would deadlock here
	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	h := newHarness(t, func(cfg *workflow.Config) { cfg.EventBus = bus })
	automation := h.save(t, engagementAutomation())

	require.NoError(t, h.engine.Initialize(ctx))
	assert.ErrorIs(t, h.engine.Initialize(ctx), workflow.ErrAlreadyInitialized)

	require.NoError(t, bus.Publish(ctx, "sub-1", welcomeEvent("sub-1")))

	assert.Eventually(t, func() bool {
		execution, err := h.store.ExecutionRepository().ByKey(ctx, automation.ID, "sub-1")

		return err == nil && execution.Status == models.ExecutionStatusPaused
	}, 5*time.Second, 10*time.Millisecond)

	assert.Len(t, h.sender.Messages(), 1)
}

func TestEngine_InitializeWithoutBus(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.engine.Initialize(context.Background()), workflow.ErrConfiguration)
}

func TestEngine_PublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	bus := &mocks.MockEventBus{}

	h := newHarness(t, func(cfg *workflow.Config) { cfg.EventBus = bus })
	automation := h.save(t, engagementAutomation())
	key := models.ExecutionKey(automation.ID, "sub-1")

	bus.On("Publish", mock.Anything, key, mock.MatchedBy(func(e eventbus.Event) bool {
		lifecycle, ok := e.(*events.ExecutionLifecycle)

		return ok && lifecycle.Type == events.ExecutionPausedEvent &&
			lifecycle.NodeID == "opened" && lifecycle.ResumeAt != nil && lifecycle.Steps == 2
	})).Return(nil).Once()

	require.NoError(t, h.engine.HandleEvent(ctx, welcomeEvent("sub-1")))

	bus.On("Publish", mock.Anything, key, mock.MatchedBy(func(e eventbus.Event) bool {
		lifecycle, ok := e.(*events.ExecutionLifecycle)

		return ok && lifecycle.Type == events.ExecutionCompletedEvent && lifecycle.NodeID == "end"
	})).Return(nil).Once()

	h.now = baseTime.Add(25 * time.Hour)
	require.NoError(t, h.resume(t, automation.ID, "sub-1"))

	bus.AssertExpectations(t)
}
