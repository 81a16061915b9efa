package workflow_test

import (
	"context"
	"testing"
	"time"

	mail "github.com/dripline/dripline/pkg/email"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/nodes/condition"
	"github.com/dripline/dripline/pkg/nodes/delay"
	"github.com/dripline/dripline/pkg/nodes/email"
	"github.com/dripline/dripline/pkg/nodes/end"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/registry"
	"github.com/dripline/dripline/pkg/testutil"
	"github.com/dripline/dripline/pkg/workflow"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type harness struct {
	store    *memory.Persistence
	sender   *mail.RecordingSender
	registry *registry.Registry
	engine   *workflow.Engine
	now      time.Time
}

func newHarness(t *testing.T, configure ...func(*workflow.Config)) *harness {
	t.Helper()

	logger := testutil.Logger()

	store, err := memory.NewPersistence(logger)
	require.NoError(t, err)

	h := &harness{
		store:    store,
		sender:   &mail.RecordingSender{},
		registry: registry.NewRegistry(logger),
		now:      baseTime,
	}

	cfg := workflow.Config{
		Persistence: store,
		Registry:    h.registry,
		Logger:      logger,
		Now:         func() time.Time { return h.now },
	}

	for _, c := range configure {
		c(&cfg)
	}

	h.engine = workflow.NewEngine(cfg)

	h.registry.Register(email.NewHandler(email.Config{
		Subscribers: store.SubscriberRepository(),
		Sends:       store.SendRepository(),
		ActionLogs:  store.ActionLogRepository(),
		Providers:   mail.StaticResolver{Provider: &mail.Provider{Name: "test", From: "news@example.com", Sender: h.sender}},
		Logger:      logger,
		Now:         func() time.Time { return h.now },
	}))
	h.registry.Register(delay.NewHandler(h.engine, logger))
	h.registry.Register(condition.NewHandler(store.SendRepository(), logger))
	h.registry.Register(end.NewHandler())

	require.NoError(t, store.SubscriberRepository().Save(context.Background(), testutil.CreateTestSubscriber("sub-1")))

	return h
}

func (h *harness) save(t *testing.T, automation *models.Automation) *models.Automation {
	t.Helper()

	require.NoError(t, h.store.AutomationRepository().Save(context.Background(), automation))

	return automation
}

// resume claims the execution at the harness clock and resumes it, the way
// the scheduler does.
func (h *harness) resume(t *testing.T, automationID, subscriberID string) error {
	t.Helper()

	claimed, err := h.store.ExecutionRepository().Claim(context.Background(), automationID, subscriberID, h.now)
	require.NoError(t, err)
	require.NotNil(t, claimed, "execution was not due")

	return h.engine.ResumeAutomation(context.Background(), claimed)
}
