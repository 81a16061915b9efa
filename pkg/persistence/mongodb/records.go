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

type ActionLogRepository struct {
	collection *mongo.Collection
}

func (r *ActionLogRepository) Append(ctx context.Context, entry *models.ActionLog) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append action log: %w", err)
	}

	return nil
}

func (r *ActionLogRepository) ListByAutomation(ctx context.Context, automationID string, limit int) ([]*models.ActionLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"automation_id": automationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query action logs: %w", err)
	}

	var logs []*models.ActionLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode action logs: %w", err)
	}

	return logs, nil
}

type SendRepository struct {
	collection *mongo.Collection
	counters   *mongo.Collection
}

// sendDocument stores a send with an insertion sequence that breaks
// created_at ties in Latest.
type sendDocument struct {
	models.SendRecord `bson:",inline"`

	Seq int64 `bson:"seq"`
}

func (r *SendRepository) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}

	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": SendCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate send sequence: %w", err)
	}

	return counter.Seq, nil
}

func (r *SendRepository) Create(ctx context.Context, record *models.SendRecord) error {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, sendDocument{SendRecord: *record, Seq: seq}); err != nil {
		return fmt.Errorf("failed to create send record: %w", err)
	}

	return nil
}

func (r *SendRepository) Latest(ctx context.Context, automationID, nodeID, subscriberID string) (*models.SendRecord, error) {
	var record models.SendRecord

	err := r.collection.FindOne(ctx,
		bson.M{"automation_id": automationID, "node_id": nodeID, "subscriber_id": subscriberID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}),
	).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("send %s/%s/%s: %w", automationID, nodeID, subscriberID, persistence.ErrSendNotFound)
		}

		return nil, fmt.Errorf("failed to get send record: %w", err)
	}

	return &record, nil
}

func (r *SendRepository) update(ctx context.Context, id string, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}

	set["updated_at"] = time.Now().UTC()
	update["$set"] = set

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update send record: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("send %s: %w", id, persistence.ErrSendNotFound)
	}

	return nil
}

func (r *SendRepository) MarkSent(ctx context.Context, id string) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"status": models.SendStatusSent, "error": ""}})
}

func (r *SendRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"status": models.SendStatusFailed, "error": reason}})
}

func (r *SendRepository) RecordOpen(ctx context.Context, id string) error {
	return r.update(ctx, id, bson.M{"$inc": bson.M{"open_count": 1}})
}

func (r *SendRepository) RecordClick(ctx context.Context, id string) error {
	return r.update(ctx, id, bson.M{"$inc": bson.M{"click_count": 1}})
}

type SubscriberRepository struct {
	collection *mongo.Collection
}

func (r *SubscriberRepository) Save(ctx context.Context, subscriber *models.Subscriber) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": subscriber.ID}, subscriber, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}

	return nil
}

func (r *SubscriberRepository) ByID(ctx context.Context, id string) (*models.Subscriber, error) {
	var subscriber models.Subscriber

	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&subscriber)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("subscriber %s: %w", id, persistence.ErrSubscriberNotFound)
		}

		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}

	return &subscriber, nil
}
