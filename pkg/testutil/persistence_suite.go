package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PersistenceFactory returns a fresh, empty store for one subtest.
type PersistenceFactory func(t *testing.T) (persistence.Persistence, context.Context)

// baseTime is truncated to milliseconds, the coarsest precision of the backends.
var baseTime = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

// RunPersistenceSuite exercises the repository contracts every backend must honour.
func RunPersistenceSuite(t *testing.T, factory PersistenceFactory) {
	t.Helper()

	t.Run("automations", func(t *testing.T) { testAutomations(t, factory) })
	t.Run("execution upsert overwrites", func(t *testing.T) { testExecutionUpsert(t, factory) })
	t.Run("execution find due", func(t *testing.T) { testFindDue(t, factory) })
	t.Run("execution claim", func(t *testing.T) { testClaim(t, factory) })
	t.Run("execution concurrent claim", func(t *testing.T) { testConcurrentClaim(t, factory) })
	t.Run("execution complete and fail", func(t *testing.T) { testCompleteAndFail(t, factory) })
	t.Run("action logs", func(t *testing.T) { testActionLogs(t, factory) })
	t.Run("send records", func(t *testing.T) { testSendRecords(t, factory) })
	t.Run("latest send on equal timestamps", func(t *testing.T) { testLatestSendSameTimestamp(t, factory) })
	t.Run("subscribers", func(t *testing.T) { testSubscribers(t, factory) })
}

func testAutomations(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.AutomationRepository()

	active := CreateTestAutomation(WithChain(EmailNode("email-1"), DelayNode("delay-1", 2, "hours"), EndNode("end-1")))
	disabled := CreateTestAutomation(Disabled())
	draft := CreateTestAutomation(func(a *models.Automation) { a.Status = models.AutomationStatusDraft })
	other := CreateTestAutomation(WithTrigger("link.clicked", nil))

	for _, a := range []*models.Automation{active, disabled, draft, other} {
		require.NoError(t, repo.Save(ctx, a))
	}

	got, err := repo.ByID(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.Name, got.Name)
	assert.Equal(t, active.Trigger.ID, got.Trigger.ID)
	assert.Len(t, got.Nodes, 3)
	assert.Equal(t, "delay-1", got.Nodes["email-1"].Next)
	assert.Equal(t, "trigger", got.EditorData.Parents["email-1"])
	assert.Equal(t, "hours", got.Nodes["delay-1"].Params["unit"])

	matches, err := repo.ActiveByTriggerType(ctx, "subscriber.created")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, active.ID, matches[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = repo.ByID(ctx, "missing")
	assert.True(t, persistence.IsAutomationNotFound(err))
}

func testExecutionUpsert(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	first := models.NewPausedExecution("auto-1", "sub-1", "node-a", baseTime.Add(time.Hour), baseTime)
	require.NoError(t, repo.Upsert(ctx, first))

	second := models.NewPausedExecution("auto-1", "sub-1", "node-b", baseTime.Add(3*time.Hour), baseTime.Add(time.Minute))
	require.NoError(t, repo.Upsert(ctx, second))

	rows, err := repo.ListByAutomation(ctx, "auto-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "node-b", rows[0].CurrentNodeID)
	assert.Equal(t, models.ExecutionStatusPaused, rows[0].Status)
	require.NotNil(t, rows[0].ResumeAt)
	assert.True(t, baseTime.Add(3*time.Hour).Equal(*rows[0].ResumeAt))

	_, err = repo.ByKey(ctx, "auto-1", "sub-2")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func testFindDue(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "late", "n", baseTime.Add(-time.Minute), baseTime)))
	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "oldest", "n", baseTime.Add(-time.Hour), baseTime)))
	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "exact", "n", baseTime, baseTime)))
	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "future", "n", baseTime.Add(time.Hour), baseTime)))
	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-2", "claimed", "n", baseTime.Add(-2*time.Hour), baseTime)))

	claimed, err := repo.Claim(ctx, "auto-2", "claimed", baseTime)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	due, err := repo.FindDue(ctx, baseTime, 10)
	require.NoError(t, err)

	subscribers := make([]string, 0, len(due))
	for _, exec := range due {
		subscribers = append(subscribers, exec.SubscriberID)
	}

	assert.Equal(t, []string{"oldest", "late", "exact"}, subscribers)

	due, err = repo.FindDue(ctx, baseTime, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func testClaim(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "sub-1", "node-b", baseTime, baseTime.Add(-time.Hour))))

	notYet, err := repo.Claim(ctx, "auto-1", "sub-1", baseTime.Add(-time.Second))
	require.NoError(t, err)
	assert.Nil(t, notYet)

	claimed, err := repo.Claim(ctx, "auto-1", "sub-1", baseTime)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.ExecutionStatusActive, claimed.Status)
	assert.Equal(t, "node-b", claimed.CurrentNodeID)

	again, err := repo.Claim(ctx, "auto-1", "sub-1", baseTime)
	require.NoError(t, err)
	assert.Nil(t, again)

	missing, err := repo.Claim(ctx, "auto-1", "nobody", baseTime)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testConcurrentClaim(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "sub-1", "node-b", baseTime, baseTime)))

	const workers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		errs    []error
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			claimed, err := repo.Claim(ctx, "auto-1", "sub-1", baseTime)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, err)
			}

			if claimed != nil {
				winners++
			}
		}()
	}

	wg.Wait()

	assert.Empty(t, errs)
	assert.Equal(t, 1, winners)
}

func testCompleteAndFail(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "sub-1", "n", baseTime, baseTime)))
	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "sub-2", "n", baseTime, baseTime)))

	ok, err := repo.Complete(ctx, "auto-1", "sub-1")
	require.NoError(t, err)
	assert.False(t, ok, "paused rows cannot complete")

	_, err = repo.Claim(ctx, "auto-1", "sub-1", baseTime)
	require.NoError(t, err)
	_, err = repo.Claim(ctx, "auto-1", "sub-2", baseTime)
	require.NoError(t, err)

	ok, err = repo.Complete(ctx, "auto-1", "sub-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Fail(ctx, "auto-1", "sub-1", "late failure")
	require.NoError(t, err)
	assert.False(t, ok, "completed rows cannot fail")

	ok, err = repo.Fail(ctx, "auto-1", "sub-2", "template missing")
	require.NoError(t, err)
	assert.True(t, ok)

	completed, err := repo.ByKey(ctx, "auto-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, completed.Status)
	assert.Nil(t, completed.ResumeAt)

	failed, err := repo.ByKey(ctx, "auto-1", "sub-2")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, "template missing", failed.Error)

	// A later DELAY reopens a finished row.
	require.NoError(t, repo.Upsert(ctx, models.NewPausedExecution("auto-1", "sub-1", "n2", baseTime.Add(time.Hour), baseTime)))

	reopened, err := repo.ByKey(ctx, "auto-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, reopened.Status)
	assert.Equal(t, "n2", reopened.CurrentNodeID)
}

func testActionLogs(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.ActionLogRepository()

	older := models.NewActionLog("auto-1", "email-1", "sub-1", models.ActionStatusSuccess, baseTime)
	older.Output = map[string]any{"send_id": "s-1"}
	newer := models.NewActionLog("auto-1", "email-1", "sub-2", models.ActionStatusFailure, baseTime.Add(time.Minute))
	newer.Error = "smtp timeout"
	other := models.NewActionLog("auto-2", "email-1", "sub-1", models.ActionStatusSuccess, baseTime)

	for _, entry := range []*models.ActionLog{older, newer, other} {
		require.NoError(t, repo.Append(ctx, entry))
	}

	logs, err := repo.ListByAutomation(ctx, "auto-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, newer.ID, logs[0].ID)
	assert.Equal(t, "smtp timeout", logs[0].Error)
	assert.Equal(t, "s-1", logs[1].Output["send_id"])

	logs, err = repo.ListByAutomation(ctx, "auto-1", 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	bad := models.NewActionLog("auto-1", "n", "s", "maybe", baseTime)
	assert.Error(t, repo.Append(ctx, bad))
}

func testSendRecords(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.SendRepository()

	first := models.NewSendRecord("auto-1", "email-1", "sub-1", baseTime)
	require.NoError(t, repo.Create(ctx, first))

	second := models.NewSendRecord("auto-1", "email-1", "sub-1", baseTime.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.MarkSent(ctx, second.ID))
	require.NoError(t, repo.RecordOpen(ctx, second.ID))
	require.NoError(t, repo.RecordOpen(ctx, second.ID))
	require.NoError(t, repo.RecordClick(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, first.ID, "bounced"))

	latest, err := repo.Latest(ctx, "auto-1", "email-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, models.SendStatusSent, latest.Status)
	assert.Equal(t, 2, latest.OpenCount)
	assert.Equal(t, 0, latest.ClickCount)

	_, err = repo.Latest(ctx, "auto-1", "email-2", "sub-1")
	assert.True(t, persistence.IsSendNotFound(err))

	assert.True(t, persistence.IsSendNotFound(repo.RecordOpen(ctx, "missing")))
}

func testLatestSendSameTimestamp(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.SendRepository()

	older := models.NewSendRecord("auto-1", "email-1", "sub-1", baseTime)
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.RecordOpen(ctx, older.ID))

	for range 5 {
		newer := models.NewSendRecord("auto-1", "email-1", "sub-1", baseTime)
		require.NoError(t, repo.Create(ctx, newer))

		latest, err := repo.Latest(ctx, "auto-1", "email-1", "sub-1")
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)
		assert.False(t, latest.Opened())
	}
}

func testSubscribers(t *testing.T, factory PersistenceFactory) {
	p, ctx := factory(t)
	repo := p.SubscriberRepository()

	subscriber := CreateTestSubscriber("sub-1")
	subscriber.CustomFields = map[string]any{"plan": "pro"}
	require.NoError(t, repo.Save(ctx, subscriber))

	got, err := repo.ByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, subscriber.Email, got.Email)
	assert.Equal(t, []string{"newsletter"}, got.Lists)
	assert.Equal(t, "pro", got.CustomFields["plan"])

	_, err = repo.ByID(ctx, "missing")
	assert.True(t, persistence.IsSubscriberNotFound(err))
}
