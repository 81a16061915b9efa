package email_test

import (
	"context"
	"errors"
	"testing"
	"time"

	mail "github.com/dripline/dripline/pkg/email"
	"github.com/dripline/dripline/pkg/graph"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/nodes/email"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/protocol"
	"github.com/dripline/dripline/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *memory.Persistence
	sender  *mail.RecordingSender
	handler *email.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := memory.NewPersistence(testutil.Logger())
	require.NoError(t, err)

	sender := &mail.RecordingSender{}
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	handler := email.NewHandler(email.Config{
		Subscribers: store.SubscriberRepository(),
		Sends:       store.SendRepository(),
		ActionLogs:  store.ActionLogRepository(),
		Templates: mail.NewMapTemplateStore(&mail.Template{
			ID:      "welcome",
			Subject: "Welcome {{ .first_name }}",
			HTML:    "<html><body>Hi {{ .full_name }}</body></html>",
		}),
		Providers: mail.StaticResolver{Provider: &mail.Provider{Name: "test", From: "news@example.com", Sender: sender}},
		Tracker:   mail.Tracker{BaseURL: "https://t.example.com"},
		Logger:    testutil.Logger(),
		Now:       func() time.Time { return now },
	})

	require.NoError(t, store.SubscriberRepository().Save(context.Background(), testutil.CreateTestSubscriber("sub-1")))

	return &fixture{store: store, sender: sender, handler: handler}
}

func input(automation *models.Automation, nodeID string) protocol.NodeInput {
	return protocol.NodeInput{
		Automation:   automation,
		Graph:        graph.New(automation),
		Node:         automation.Nodes[nodeID],
		SubscriberID: "sub-1",
	}
}

func TestHandler_InlineContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	automation := testutil.CreateTestAutomation(testutil.WithChain(testutil.EmailNode("email-1"), testutil.EndNode("end")))

	step, err := f.handler.Execute(ctx, input(automation, "email-1"))
	require.NoError(t, err)
	assert.Equal(t, protocol.Continue("end"), step)

	messages := f.sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "sub-1@example.com", messages[0].To)
	assert.Equal(t, "news@example.com", messages[0].From)
	assert.Equal(t, "Hello Ada", messages[0].Subject)
	assert.Contains(t, messages[0].HTML, "https://t.example.com/t/click/")
	assert.Contains(t, messages[0].HTML, "https://t.example.com/t/open/")
	assert.NotEmpty(t, messages[0].Headers["List-Unsubscribe"])

	record, err := f.store.SendRepository().Latest(ctx, automation.ID, "email-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SendStatusSent, record.Status)

	logs, err := f.store.ActionLogRepository().ListByAutomation(ctx, automation.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusSuccess, logs[0].Status)
	assert.Equal(t, record.ID, logs[0].Input["send_id"])
}

func TestHandler_Template(t *testing.T) {
	f := newFixture(t)

	node := models.Node{ID: "email-1", Type: models.NodeTypeEmail, Params: map[string]any{"templateId": "welcome"}}
	automation := testutil.CreateTestAutomation(testutil.WithChain(node))

	step, err := f.handler.Execute(context.Background(), input(automation, "email-1"))
	require.NoError(t, err)
	assert.Equal(t, protocol.StepTerminate, step.Kind)

	messages := f.sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Welcome Ada", messages[0].Subject)
	assert.Contains(t, messages[0].HTML, "Hi Ada Lovelace")
}

func TestHandler_DeliveryFailureAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sender.Err = errors.New("smtp unavailable")

	automation := testutil.CreateTestAutomation(testutil.WithChain(testutil.EmailNode("email-1"), testutil.EndNode("end")))

	step, err := f.handler.Execute(ctx, input(automation, "email-1"))
	require.NoError(t, err)
	assert.Equal(t, protocol.Continue("end"), step)

	record, err := f.store.SendRepository().Latest(ctx, automation.ID, "email-1", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, models.SendStatusFailed, record.Status)
	assert.Contains(t, record.Error, "smtp unavailable")

	logs, err := f.store.ActionLogRepository().ListByAutomation(ctx, automation.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionStatusFailure, logs[0].Status)
	assert.Contains(t, logs[0].Error, "smtp unavailable")
}

func TestHandler_MissingContentAndTemplate(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{name: "no content", params: map[string]any{}, want: email.ErrNoContent.Error()},
		{name: "unknown template", params: map[string]any{"templateId": "ghost"}, want: mail.ErrTemplateNotFound.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			node := models.Node{ID: "email-1", Type: models.NodeTypeEmail, Params: tt.params, Next: "end"}
			automation := testutil.CreateTestAutomation(testutil.WithChain(node, testutil.EndNode("end")))

			step, err := f.handler.Execute(ctx, input(automation, "email-1"))
			require.NoError(t, err)
			assert.Equal(t, protocol.Continue("end"), step)
			assert.Empty(t, f.sender.Messages())

			logs, err := f.store.ActionLogRepository().ListByAutomation(ctx, automation.ID, 0)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Contains(t, logs[0].Error, tt.want)
		})
	}
}

func TestHandler_UnknownSubscriber(t *testing.T) {
	f := newFixture(t)

	automation := testutil.CreateTestAutomation(testutil.WithChain(testutil.EmailNode("email-1")))
	in := input(automation, "email-1")
	in.SubscriberID = "ghost"

	step, err := f.handler.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, protocol.StepTerminate, step.Kind)
	assert.Empty(t, f.sender.Messages())
}
