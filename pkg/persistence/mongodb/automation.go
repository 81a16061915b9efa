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

type AutomationRepository struct {
	collection *mongo.Collection
}

func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC().Truncate(time.Millisecond)

	createdAt := automation.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": automation.ID},
		bson.M{
			"$set": bson.M{
				"user_id":     automation.UserID,
				"name":        automation.Name,
				"enabled":     automation.Enabled,
				"status":      automation.Status,
				"trigger":     automation.Trigger,
				"nodes":       automation.Nodes,
				"editor_data": automation.EditorData,
				"updated_at":  now,
			},
			"$setOnInsert": bson.M{"created_at": createdAt},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return persistence.NewAutomationError("Save", automation.ID, err)
	}

	stored, err := r.ByID(ctx, automation.ID)
	if err != nil {
		return err
	}

	automation.CreatedAt = stored.CreatedAt
	automation.UpdatedAt = stored.UpdatedAt

	return nil
}

func (r *AutomationRepository) ByID(ctx context.Context, id string) (*models.Automation, error) {
	var automation models.Automation

	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&automation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, persistence.NewAutomationError("ByID", id, persistence.ErrAutomationNotFound)
		}

		return nil, persistence.NewAutomationError("ByID", id, err)
	}

	return &automation, nil
}

func (r *AutomationRepository) ActiveByTriggerType(ctx context.Context, triggerType string) ([]*models.Automation, error) {
	return r.find(ctx, bson.M{
		"trigger.type": triggerType,
		"enabled":      true,
		"status":       models.AutomationStatusActive,
	}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *AutomationRepository) List(ctx context.Context) ([]*models.Automation, error) {
	return r.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *AutomationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Automation, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	var automations []*models.Automation
	if err := cursor.All(ctx, &automations); err != nil {
		return nil, fmt.Errorf("failed to decode automations: %w", err)
	}

	return automations, nil
}
