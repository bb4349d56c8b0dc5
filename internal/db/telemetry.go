package db

import (
	"context"

	"github.com/ukydev/fleet-relay/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTelemetryCollection implements TelemetryCollection for MongoDB
type MongoTelemetryCollection struct {
	Store *Store
}

func (c *MongoTelemetryCollection) coll(ctx context.Context) (*mongo.Collection, error) {
	return c.Store.Collection(ctx, TelemetryCollectionName)
}

// InsertTelemetryLog inserts an audit row and assigns its ID
func (c *MongoTelemetryCollection) InsertTelemetryLog(ctx context.Context, entry *models.TelemetryLog) error {
	coll, err := c.coll(ctx)
	if err != nil {
		return err
	}
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err = coll.InsertOne(ctx, entry)
	return err
}

// UpdateTelemetryOutcome records the notification result on an audit row
func (c *MongoTelemetryCollection) UpdateTelemetryOutcome(ctx context.Context, id primitive.ObjectID, outcome models.NotificationOutcome) error {
	coll, err := c.coll(ctx)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"notification_sent":  outcome.Sent,
		"devices_notified":   outcome.DevicesNotified,
		"notification_error": outcome.Error,
		"processed_at":       outcome.ProcessedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindTelemetryLogs returns the newest rows first, optionally for one vehicle
func (c *MongoTelemetryCollection) FindTelemetryLogs(ctx context.Context, deviceID string, limit int64) ([]models.TelemetryLog, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if deviceID != "" {
		filter["device_id"] = deviceID
	}
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}}).SetLimit(limit)

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []models.TelemetryLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
