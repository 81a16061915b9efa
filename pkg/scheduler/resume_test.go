package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/dripline/dripline/pkg/cmd"
	mail "github.com/dripline/dripline/pkg/email"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/dripline/dripline/pkg/testutil"
	"github.com/dripline/dripline/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_ResumesPausedRunToCompletion(t *testing.T) {
	ctx := context.Background()
	logger := testutil.Logger()
	now := baseTime

	store, err := memory.NewPersistence(logger)
	require.NoError(t, err)

	reg := registry.NewRegistry(logger)
	engine := workflow.NewEngine(workflow.Config{
		Persistence: store,
		Registry:    reg,
		Logger:      logger,
		Now:         func() time.Time { return now },
	})

	sender := &mail.RecordingSender{}
	cmd.RegisterNodes(reg, logger, cmd.NodeDeps{
		Persistence: store,
		Providers:   mail.StaticResolver{Provider: &mail.Provider{Name: "test", From: "news@example.com", Sender: sender}},
		Scheduler:   engine,
	})

	require.NoError(t, store.SubscriberRepository().Save(ctx, testutil.CreateTestSubscriber("sub-1")))

	automation := testutil.CreateTestAutomation(testutil.WithChain(
		testutil.DelayNode("wait", 2, "hours"),
		testutil.EmailNode("send"),
		testutil.EndNode("end"),
	))
	require.NoError(t, store.AutomationRepository().Save(ctx, automation))

	result := engine.StartRun(ctx, automation, "sub-1")
	require.Equal(t, workflow.OutcomePaused, result.Outcome)

	poller := scheduler.New(scheduler.Config{
		Executions: store.ExecutionRepository(),
		Resumer:    engine,
		Logger:     logger,
		Now:        func() time.Time { return now },
	})

	report, err := poller.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Due)
	assert.Empty(t, sender.Messages())

	now = baseTime.Add(2 * time.Hour)

	report, err = poller.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resumed)

	execution, err := store.ExecutionRepository().ByKey(ctx, automation.ID, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Len(t, sender.Messages(), 1)
}
