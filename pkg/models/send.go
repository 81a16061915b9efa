package models

import (
	"time"

	"github.com/google/uuid"
)

type SendStatus string

const (
	SendStatusPending SendStatus = "pending"
	SendStatusSent    SendStatus = "sent"
	SendStatusFailed  SendStatus = "failed"
)

// SendRecord tracks one email delivered by one EMAIL node to one subscriber,
// along with the engagement counters fed by the tracking endpoints.
type SendRecord struct {
	ID           string     `bson:"_id"             json:"id"`
	AutomationID string     `bson:"automation_id"   json:"automation_id"`
	NodeID       string     `bson:"node_id"         json:"node_id"`
	SubscriberID string     `bson:"subscriber_id"   json:"subscriber_id"`
	Status       SendStatus `bson:"status"          json:"status"`
	OpenCount    int        `bson:"open_count"      json:"open_count"`
	ClickCount   int        `bson:"click_count"     json:"click_count"`
	Error        string     `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"      json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"      json:"updated_at"`
}

func NewSendRecord(automationID, nodeID, subscriberID string, now time.Time) *SendRecord {
	return &SendRecord{
		ID:           uuid.NewString(),
		AutomationID: automationID,
		NodeID:       nodeID,
		SubscriberID: subscriberID,
		Status:       SendStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *SendRecord) Opened() bool {
	return s.OpenCount > 0
}

func (s *SendRecord) Clicked() bool {
	return s.ClickCount > 0
}
