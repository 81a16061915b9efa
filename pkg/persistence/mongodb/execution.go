package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// executionDocument keys the execution by its composite identity.
type executionDocument struct {
	ID                         string `bson:"_id"`
	models.AutomationExecution `bson:",inline"`
}

// ExecutionRepository relies on single-document atomicity: every guarded
// transition is one filtered update.
type ExecutionRepository struct {
	collection *mongo.Collection
}

func executionID(automationID, subscriberID string) string {
	return models.ExecutionKey(automationID, subscriberID)
}

func (r *ExecutionRepository) Upsert(ctx context.Context, execution *models.AutomationExecution) error {
	now := time.Now().UTC()

	createdAt := execution.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": execution.Key()},
		bson.M{
			"$set": bson.M{
				"automation_id":   execution.AutomationID,
				"subscriber_id":   execution.SubscriberID,
				"current_node_id": execution.CurrentNodeID,
				"status":          execution.Status,
				"resume_at":       execution.ResumeAt,
				"context":         execution.Context,
				"error":           execution.Error,
				"updated_at":      now,
			},
			"$setOnInsert": bson.M{"created_at": createdAt},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return persistence.NewExecutionError("Upsert", execution.AutomationID, execution.SubscriberID, err)
	}

	return nil
}

func (r *ExecutionRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.AutomationExecution, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "resume_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	return r.find(ctx, bson.M{
		"status":    models.ExecutionStatusPaused,
		"resume_at": bson.M{"$lte": now},
	}, opts)
}

func (r *ExecutionRepository) Claim(ctx context.Context, automationID, subscriberID string, now time.Time) (*models.AutomationExecution, error) {
	var doc executionDocument

	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{
			"_id":       executionID(automationID, subscriberID),
			"status":    models.ExecutionStatusPaused,
			"resume_at": bson.M{"$lte": now},
		},
		bson.M{
			"$set":   bson.M{"status": models.ExecutionStatusActive, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"resume_at": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil //nolint:nilnil // a lost claim is not an error
		}

		return nil, persistence.NewExecutionError("Claim", automationID, subscriberID, err)
	}

	return &doc.AutomationExecution, nil
}

func (r *ExecutionRepository) Complete(ctx context.Context, automationID, subscriberID string) (bool, error) {
	return r.finish(ctx, "Complete", automationID, subscriberID, bson.M{
		"status":     models.ExecutionStatusCompleted,
		"updated_at": time.Now().UTC(),
	})
}

func (r *ExecutionRepository) Fail(ctx context.Context, automationID, subscriberID, reason string) (bool, error) {
	return r.finish(ctx, "Fail", automationID, subscriberID, bson.M{
		"status":     models.ExecutionStatusFailed,
		"error":      reason,
		"updated_at": time.Now().UTC(),
	})
}

func (r *ExecutionRepository) finish(ctx context.Context, op, automationID, subscriberID string, set bson.M) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": executionID(automationID, subscriberID), "status": models.ExecutionStatusActive},
		bson.M{"$set": set, "$unset": bson.M{"resume_at": ""}})
	if err != nil {
		return false, persistence.NewExecutionError(op, automationID, subscriberID, err)
	}

	return result.MatchedCount == 1, nil
}

func (r *ExecutionRepository) ByKey(ctx context.Context, automationID, subscriberID string) (*models.AutomationExecution, error) {
	var doc executionDocument

	err := r.collection.FindOne(ctx, bson.M{"_id": executionID(automationID, subscriberID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, persistence.NewExecutionError("ByKey", automationID, subscriberID, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ByKey", automationID, subscriberID, err)
	}

	return &doc.AutomationExecution, nil
}

func (r *ExecutionRepository) ListByAutomation(ctx context.Context, automationID string) ([]*models.AutomationExecution, error) {
	return r.find(ctx, bson.M{"automation_id": automationID}, options.Find().SetSort(bson.D{{Key: "subscriber_id", Value: 1}}))
}

func (r *ExecutionRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.AutomationExecution, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	var docs []executionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode executions: %w", err)
	}

	executions := make([]*models.AutomationExecution, 0, len(docs))
	for i := range docs {
		executions = append(executions, &docs[i].AutomationExecution)
	}

	return executions, nil
}
