package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

type actionLogRow struct {
	ID           string
	AutomationID string
	Log          *models.ActionLog
}

type ActionLogRepository struct {
	p *Persistence
}

func (r *ActionLogRepository) Append(_ context.Context, entry *models.ActionLog) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	txn := r.p.db.Txn(true)
	defer txn.Abort()

	stored := *entry
	if err := txn.Insert(tableActionLogs, &actionLogRow{ID: stored.ID, AutomationID: stored.AutomationID, Log: &stored}); err != nil {
		return fmt.Errorf("failed to append action log: %w", err)
	}

	txn.Commit()

	return nil
}

func (r *ActionLogRepository) ListByAutomation(_ context.Context, automationID string, limit int) ([]*models.ActionLog, error) {
	txn := r.p.db.Txn(false)

	it, err := txn.Get(tableActionLogs, "automation", automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}

	var logs []*models.ActionLog

	for raw := it.Next(); raw != nil; raw = it.Next() {
		entry := *raw.(*actionLogRow).Log
		logs = append(logs, &entry)
	}

	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })

	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	return logs, nil
}

// sendRow carries an insertion sequence so Latest is stable when two sends
// share a CreatedAt.
type sendRow struct {
	ID     string
	Key    string
	Seq    uint64
	Record *models.SendRecord
}

func sendKey(automationID, nodeID, subscriberID string) string {
	return automationID + ":" + nodeID + ":" + subscriberID
}

type SendRepository struct {
	p *Persistence
}

func (r *SendRepository) Create(_ context.Context, record *models.SendRecord) error {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	stored := *record
	row := &sendRow{
		ID:     stored.ID,
		Key:    sendKey(stored.AutomationID, stored.NodeID, stored.SubscriberID),
		Seq:    r.p.sendSeq.Add(1),
		Record: &stored,
	}

	if err := txn.Insert(tableSends, row); err != nil {
		return fmt.Errorf("failed to create send record: %w", err)
	}

	txn.Commit()

	return nil
}

func (r *SendRepository) Latest(_ context.Context, automationID, nodeID, subscriberID string) (*models.SendRecord, error) {
	txn := r.p.db.Txn(false)

	it, err := txn.Get(tableSends, "key", sendKey(automationID, nodeID, subscriberID))
	if err != nil {
		return nil, fmt.Errorf("failed to query send records: %w", err)
	}

	var latest *sendRow

	for raw := it.Next(); raw != nil; raw = it.Next() {
		row := raw.(*sendRow)
		if latest == nil || newerSend(row, latest) {
			latest = row
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("send %s: %w", sendKey(automationID, nodeID, subscriberID), persistence.ErrSendNotFound)
	}

	clone := *latest.Record

	return &clone, nil
}

func newerSend(a, b *sendRow) bool {
	if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
		return a.Record.CreatedAt.After(b.Record.CreatedAt)
	}

	return a.Seq > b.Seq
}

func (r *SendRepository) update(id string, mutate func(record *models.SendRecord)) error {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableSends, "id", id)
	if err != nil {
		return fmt.Errorf("failed to get send record: %w", err)
	}

	if raw == nil {
		return fmt.Errorf("send %s: %w", id, persistence.ErrSendNotFound)
	}

	row := raw.(*sendRow)
	record := *row.Record
	mutate(&record)
	record.UpdatedAt = r.p.now()

	if err := txn.Insert(tableSends, &sendRow{ID: row.ID, Key: row.Key, Seq: row.Seq, Record: &record}); err != nil {
		return fmt.Errorf("failed to update send record: %w", err)
	}

	txn.Commit()

	return nil
}

func (r *SendRepository) MarkSent(_ context.Context, id string) error {
	return r.update(id, func(record *models.SendRecord) {
		record.Status = models.SendStatusSent
		record.Error = ""
	})
}

func (r *SendRepository) MarkFailed(_ context.Context, id, reason string) error {
	return r.update(id, func(record *models.SendRecord) {
		record.Status = models.SendStatusFailed
		record.Error = reason
	})
}

func (r *SendRepository) RecordOpen(_ context.Context, id string) error {
	return r.update(id, func(record *models.SendRecord) { record.OpenCount++ })
}

func (r *SendRepository) RecordClick(_ context.Context, id string) error {
	return r.update(id, func(record *models.SendRecord) { record.ClickCount++ })
}

type subscriberRow struct {
	ID         string
	Subscriber *models.Subscriber
}

type SubscriberRepository struct {
	p *Persistence
}

func (r *SubscriberRepository) Save(_ context.Context, subscriber *models.Subscriber) error {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	stored := *subscriber
	stored.Lists = append([]string(nil), subscriber.Lists...)

	if err := txn.Insert(tableSubscribers, &subscriberRow{ID: stored.ID, Subscriber: &stored}); err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}

	txn.Commit()

	return nil
}

func (r *SubscriberRepository) ByID(_ context.Context, id string) (*models.Subscriber, error) {
	txn := r.p.db.Txn(false)

	raw, err := txn.First(tableSubscribers, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}

	if raw == nil {
		return nil, fmt.Errorf("subscriber %s: %w", id, persistence.ErrSubscriberNotFound)
	}

	clone := *raw.(*subscriberRow).Subscriber

	return &clone, nil
}
