package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUserScoped(t *testing.T) {
	tests := []struct {
		eventType EventType
		want      bool
	}{
		{SubscriberCreatedEvent, true},
		{ListSubscribedEvent, true},
		{TagAddedEvent, true},
		{FormSubmittedEvent, true},
		{OfferPurchasedEvent, true},
		{LinkClickedEvent, false},
		{EmailOpenedEvent, false},
		{EmailBouncedEvent, false},
		{EventType("custom.event"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.want, IsUserScoped(tt.eventType))
		})
	}
}

func TestDomainEventTypes(t *testing.T) {
	for _, eventType := range DomainEventTypes() {
		assert.True(t, IsDomainEvent(eventType))
		assert.False(t, IsLifecycleEvent(eventType))
	}

	assert.False(t, IsDomainEvent(ExecutionPausedEvent))
	assert.True(t, IsLifecycleEvent(ExecutionFailedEvent))
}

func TestDomainEvent_JSON(t *testing.T) {
	original := NewDomainEvent(ListSubscribedEvent, Payload{
		SubscriberID: "sub-1",
		UserID:       "user-1",
		Lists:        []string{"newsletter"},
	})

	assert.Equal(t, ListSubscribedEvent, original.GetType())
	assert.NotEmpty(t, original.ID)

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"list.subscribed"`)
	assert.Contains(t, string(data), `"subscriber_id":"sub-1"`)

	var decoded DomainEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Payload, decoded.Payload)
	assert.Equal(t, original.ID, decoded.ID)
}

func TestExecutionLifecycle_JSON(t *testing.T) {
	resumeAt := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	original := NewExecutionLifecycle(ExecutionPausedEvent, "auto-1", "sub-1")
	original.NodeID = "email-2"
	original.ResumeAt = &resumeAt
	original.Steps = 2

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ExecutionLifecycle
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ExecutionPausedEvent, decoded.GetType())
	assert.Equal(t, "email-2", decoded.NodeID)
	assert.True(t, resumeAt.Equal(*decoded.ResumeAt))
	assert.Equal(t, 2, decoded.Steps)
}
