package db

import (
	"context"
	"errors"

	"github.com/ukydev/fleet-relay/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWebhookCollection implements WebhookCollection for MongoDB
type MongoWebhookCollection struct {
	Store *Store
}

func (c *MongoWebhookCollection) coll(ctx context.Context) (*mongo.Collection, error) {
	return c.Store.Collection(ctx, WebhookCollectionName)
}

// InsertWebhook inserts an audit row and assigns its ID
func (c *MongoWebhookCollection) InsertWebhook(ctx context.Context, rec *models.WebhookRecord) error {
	coll, err := c.coll(ctx)
	if err != nil {
		return err
	}
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	_, err = coll.InsertOne(ctx, rec)
	return err
}

// UpdateWebhookOutcome records the notification result on an audit row
func (c *MongoWebhookCollection) UpdateWebhookOutcome(ctx context.Context, id primitive.ObjectID, outcome models.NotificationOutcome) error {
	coll, err := c.coll(ctx)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"notification_sent":  outcome.Sent,
		"notification_error": outcome.Error,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindRecentWebhooks returns the newest rows first
func (c *MongoWebhookCollection) FindRecentWebhooks(ctx context.Context, limit int64) ([]models.WebhookRecord, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.WebhookRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FindWebhookByID finds a webhook by its hex ID
func (c *MongoWebhookCollection) FindWebhookByID(ctx context.Context, id string) (*models.WebhookRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	coll, err := c.coll(ctx)
	if err != nil {
		return nil, err
	}

	var rec models.WebhookRecord
	if err := coll.FindOne(ctx, bson.M{"_id": objectID}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// DeleteAllWebhooks deletes every webhook record
func (c *MongoWebhookCollection) DeleteAllWebhooks(ctx context.Context) (int64, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// WebhookStats counts records and finds the latest timestamp
func (c *MongoWebhookCollection) WebhookStats(ctx context.Context) (*models.WebhookStats, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return nil, err
	}

	total, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	notified, err := coll.CountDocuments(ctx, bson.M{"notification_sent": true})
	if err != nil {
		return nil, err
	}
	stats := &models.WebhookStats{Total: total, Notified: notified}

	var latest models.WebhookRecord
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	err = coll.FindOne(ctx, bson.M{}, opts).Decode(&latest)
	switch {
	case err == nil:
		stats.LastReceived = &latest.Timestamp
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, err
	}
	return stats, nil
}
