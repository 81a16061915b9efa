package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dripline/dripline/pkg/mocks"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/scheduler"
	"github.com/dripline/dripline/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type fakeResumer struct {
	mu      sync.Mutex
	resumed []string
	fail    map[string]error
}

func (f *fakeResumer) ResumeAutomation(_ context.Context, execution *models.AutomationExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resumed = append(f.resumed, execution.SubscriberID)

	return f.fail[execution.SubscriberID]
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, time.Duration) (scheduler.ReleaseFunc, bool, error) {
	return nil, false, nil
}

type stuckLocker struct{}

func (stuckLocker) Acquire(context.Context, time.Duration) (scheduler.ReleaseFunc, bool, error) {
	return func(context.Context) error { return errors.New("connection reset") }, true, nil
}

func TestScheduler_TickResumesDueExecutions(t *testing.T) {
	ctx := context.Background()

	store, err := memory.NewPersistence(testutil.Logger())
	require.NoError(t, err)

	executions := store.ExecutionRepository()

	for _, row := range []*models.AutomationExecution{
		models.NewPausedExecution("auto-1", "sub-1", "cond", baseTime.Add(-time.Minute), baseTime.Add(-time.Hour)),
		models.NewPausedExecution("auto-1", "sub-2", "cond", baseTime, baseTime.Add(-time.Hour)),
		models.NewPausedExecution("auto-1", "sub-3", "cond", baseTime.Add(time.Hour), baseTime.Add(-time.Hour)),
	} {
		require.NoError(t, executions.Upsert(ctx, row))
	}

	resumer := &fakeResumer{fail: map[string]error{"sub-2": errors.New("automation gone")}}

	s := scheduler.New(scheduler.Config{
		Executions: executions,
		Resumer:    resumer,
		Logger:     testutil.Logger(),
		Now:        func() time.Time { return baseTime },
	})

	report, err := s.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, scheduler.TickReport{Due: 2, Resumed: 1, Failed: 1}, report)
	assert.ElementsMatch(t, []string{"sub-1", "sub-2"}, resumer.resumed)

	failed, err := executions.ByKey(ctx, "auto-1", "sub-2")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, "automation gone", failed.Error)

	active, err := executions.ByKey(ctx, "auto-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusActive, active.Status)

	pending, err := executions.ByKey(ctx, "auto-1", "sub-3")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, pending.Status)

	report, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Due)
}

func TestScheduler_TickRespectsBatchSize(t *testing.T) {
	repo := &mocks.MockExecutionRepository{}
	repo.On("FindDue", mock.Anything, baseTime, 25).Return([]*models.AutomationExecution{}, nil)

	s := scheduler.New(scheduler.Config{
		Executions: repo,
		Resumer:    &fakeResumer{},
		BatchSize:  25,
		Logger:     testutil.Logger(),
		Now:        func() time.Time { return baseTime },
	})

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestScheduler_LostClaimIsSkipped(t *testing.T) {
	row := models.NewPausedExecution("auto-1", "sub-1", "cond", baseTime, baseTime.Add(-time.Hour))

	repo := &mocks.MockExecutionRepository{}
	repo.On("FindDue", mock.Anything, baseTime, scheduler.DefaultBatchSize).Return([]*models.AutomationExecution{row}, nil)
	repo.On("Claim", mock.Anything, "auto-1", "sub-1", baseTime).Return(nil, nil)

	resumer := &fakeResumer{}

	s := scheduler.New(scheduler.Config{
		Executions: repo,
		Resumer:    resumer,
		Logger:     testutil.Logger(),
		Now:        func() time.Time { return baseTime },
	})

	report, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Lost)
	assert.Empty(t, resumer.resumed)
	repo.AssertExpectations(t)
}

func TestScheduler_FailIsRetried(t *testing.T) {
	row := models.NewPausedExecution("auto-1", "sub-1", "cond", baseTime, baseTime.Add(-time.Hour))
	claimed := *row
	claimed.Status = models.ExecutionStatusActive

	repo := &mocks.MockExecutionRepository{}
	repo.On("FindDue", mock.Anything, baseTime, scheduler.DefaultBatchSize).Return([]*models.AutomationExecution{row}, nil)
	repo.On("Claim", mock.Anything, "auto-1", "sub-1", baseTime).Return(&claimed, nil)
	repo.On("Fail", mock.Anything, "auto-1", "sub-1", "boom").Return(false, errors.New("connection reset")).Once()
	repo.On("Fail", mock.Anything, "auto-1", "sub-1", "boom").Return(true, nil).Once()

	s := scheduler.New(scheduler.Config{
		Executions: repo,
		Resumer:    &fakeResumer{fail: map[string]error{"sub-1": errors.New("boom")}},
		Logger:     testutil.Logger(),
		Now:        func() time.Time { return baseTime },
	})

	report, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Errors)
	repo.AssertNumberOfCalls(t, "Fail", 2)
}

func TestScheduler_FindDueError(t *testing.T) {
	repo := &mocks.MockExecutionRepository{}
	repo.On("FindDue", mock.Anything, baseTime, scheduler.DefaultBatchSize).Return(nil, errors.New("db down"))

	s := scheduler.New(scheduler.Config{
		Executions: repo,
		Resumer:    &fakeResumer{},
		Logger:     testutil.Logger(),
		Now:        func() time.Time { return baseTime },
	})

	_, err := s.Tick(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestScheduler_SkipsWhenLockHeld(t *testing.T) {
	repo := &mocks.MockExecutionRepository{}

	s := scheduler.New(scheduler.Config{
		Executions: repo,
		Resumer:    &fakeResumer{},
		Locker:     heldLocker{},
		Logger:     testutil.Logger(),
	})

	report, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	repo.AssertNotCalled(t, "FindDue", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_LogsReleaseFailure(t *testing.T) {
	repo := &mocks.MockExecutionRepository{}
	repo.On("FindDue", mock.Anything, baseTime, scheduler.DefaultBatchSize).Return(nil, nil)

	var buf bytes.Buffer

	s := scheduler.New(scheduler.Config{
		Executions: repo,
		Resumer:    &fakeResumer{},
		Locker:     stuckLocker{},
		Logger:     slog.New(slog.NewTextHandler(&buf, nil)),
		Now:        func() time.Time { return baseTime },
	})

	report, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.Contains(t, buf.String(), "Failed to release scheduler lock")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestScheduler_StartStop(t *testing.T) {
	ctx := context.Background()

	store, err := memory.NewPersistence(testutil.Logger())
	require.NoError(t, err)

	executions := store.ExecutionRepository()
	require.NoError(t, executions.Upsert(ctx,
		models.NewPausedExecution("auto-1", "sub-1", "cond", baseTime, baseTime.Add(-time.Hour))))

	resumer := &fakeResumer{}

	s := scheduler.New(scheduler.Config{
		Executions: executions,
		Resumer:    resumer,
		Interval:   time.Second,
		Logger:     testutil.Logger(),
		Now:        func() time.Time { return baseTime },
	})

	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), scheduler.ErrAlreadyStarted)

	assert.Eventually(t, func() bool {
		resumer.mu.Lock()
		defer resumer.mu.Unlock()

		return len(resumer.resumed) == 1
	}, 5*time.Second, 50*time.Millisecond)

	s.Stop(ctx)
	s.Stop(ctx)
}
