// Package memory provides an in-process persistence implementation backed by go-memdb.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dripline/dripline/pkg/persistence"
	"github.com/hashicorp/go-memdb"
)

const (
	tableAutomations = "automations"
	tableExecutions  = "executions"
	tableActionLogs  = "action_logs"
	tableSends       = "sends"
	tableSubscribers = "subscribers"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableAutomations: {
				Name: tableAutomations,
				Indexes: map[string]*memdb.IndexSchema{
					"id":           {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"trigger_type": {Name: "trigger_type", Indexer: &memdb.StringFieldIndex{Field: "TriggerType"}},
				},
			},
			tableExecutions: {
				Name: tableExecutions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":         {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Key"}},
					"automation": {Name: "automation", Indexer: &memdb.StringFieldIndex{Field: "AutomationID"}},
					"status":     {Name: "status", Indexer: &memdb.StringFieldIndex{Field: "Status"}},
				},
			},
			tableActionLogs: {
				Name: tableActionLogs,
				Indexes: map[string]*memdb.IndexSchema{
					"id":         {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"automation": {Name: "automation", Indexer: &memdb.StringFieldIndex{Field: "AutomationID"}},
				},
			},
			tableSends: {
				Name: tableSends,
				Indexes: map[string]*memdb.IndexSchema{
					"id":  {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"key": {Name: "key", Indexer: &memdb.StringFieldIndex{Field: "Key"}},
				},
			},
			tableSubscribers: {
				Name: tableSubscribers,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
		},
	}
}

// Persistence keeps every repository in a single go-memdb database. Write
// transactions are serialized, which makes conditional updates atomic.
type Persistence struct {
	db     *memdb.MemDB
	logger *slog.Logger
	now    func() time.Time

	sendSeq atomic.Uint64

	automations *AutomationRepository
	executions  *ExecutionRepository
	actionLogs  *ActionLogRepository
	sends       *SendRepository
	subscribers *SubscriberRepository
}

// NewPersistence creates an empty in-memory store.
func NewPersistence(logger *slog.Logger) (*Persistence, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}

	p := &Persistence{
		db:     db,
		logger: logger.With("module", "memory-persistence"),
		now:    func() time.Time { return time.Now().UTC() },
	}

	p.automations = &AutomationRepository{p: p}
	p.executions = &ExecutionRepository{p: p}
	p.actionLogs = &ActionLogRepository{p: p}
	p.sends = &SendRepository{p: p}
	p.subscribers = &SubscriberRepository{p: p}

	return p, nil
}

//nolint:ireturn
func (p *Persistence) AutomationRepository() persistence.AutomationRepository { return p.automations }

//nolint:ireturn
func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository { return p.executions }

//nolint:ireturn
func (p *Persistence) ActionLogRepository() persistence.ActionLogRepository { return p.actionLogs }

//nolint:ireturn
func (p *Persistence) SendRepository() persistence.SendRepository { return p.sends }

//nolint:ireturn
func (p *Persistence) SubscriberRepository() persistence.SubscriberRepository { return p.subscribers }

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
