// Package mongodb provides MongoDB persistence for automations and executions.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dripline/dripline/pkg/persistence"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	AutomationCollection = "automations"
	ExecutionCollection  = "automation_executions"
	ActionLogCollection  = "action_logs"
	SendCollection       = "send_records"
	SubscriberCollection = "subscribers"
	CounterCollection    = "counters"

	defaultDatabase = "dripline"
)

// Client scopes a mongo client to one database.
type Client struct {
	database string
	client   *mongo.Client
}

func NewClient(client *mongo.Client, database string) *Client {
	return &Client{
		database: database,
		client:   client,
	}
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.client.Database(c.database).Collection(name)
}

// Persistence implements the persistence layer for MongoDB.
type Persistence struct {
	client      *Client
	logger      *slog.Logger
	automations *AutomationRepository
	executions  *ExecutionRepository
	actionLogs  *ActionLogRepository
	sends       *SendRepository
	subscribers *SubscriberRepository
}

// NewPersistence connects to uri and ensures indexes. The database name is
// taken from the URI path, defaulting to "dripline".
func NewPersistence(ctx context.Context, logger *slog.Logger, uri string) (*Persistence, error) {
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	client := NewClient(mongoClient, databaseName(uri))

	p := &Persistence{
		client:      client,
		logger:      logger.With("module", "mongodb"),
		automations: &AutomationRepository{collection: client.collection(AutomationCollection)},
		executions:  &ExecutionRepository{collection: client.collection(ExecutionCollection)},
		actionLogs:  &ActionLogRepository{collection: client.collection(ActionLogCollection)},
		sends: &SendRepository{
			collection: client.collection(SendCollection),
			counters:   client.collection(CounterCollection),
		},
		subscribers: &SubscriberRepository{collection: client.collection(SubscriberCollection)},
	}

	if err := p.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

func databaseName(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}

	if name := strings.Trim(parsed.Path, "/"); name != "" {
		return name
	}

	return defaultDatabase
}

func (p *Persistence) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		AutomationCollection: {
			{Keys: bson.D{{Key: "trigger.type", Value: 1}}},
		},
		ExecutionCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "resume_at", Value: 1}}},
			{Keys: bson.D{{Key: "automation_id", Value: 1}}},
		},
		ActionLogCollection: {
			{Keys: bson.D{{Key: "automation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		SendCollection: {
			{Keys: bson.D{
				{Key: "automation_id", Value: 1},
				{Key: "node_id", Value: 1},
				{Key: "subscriber_id", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "seq", Value: -1},
			}},
		},
	}

	for name, specs := range indexes {
		if _, err := p.client.collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}

		p.logger.DebugContext(ctx, "Ensured indexes", "collection", name, "count", len(specs))
	}

	return nil
}

// Drop removes every collection; used by tests.
func (p *Persistence) Drop(ctx context.Context) error {
	return p.client.client.Database(p.client.database).Drop(ctx)
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	if err := p.client.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	return nil
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
