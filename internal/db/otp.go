package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/fleet-relay/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOTPCollection implements OTPCollection for MongoDB
type MongoOTPCollection struct {
	Store *Store
}

func (c *MongoOTPCollection) coll(ctx context.Context) (*mongo.Collection, error) {
	return c.Store.Collection(ctx, OTPCollectionName)
}

// DeleteUnverified removes every pending record for a phone number
func (c *MongoOTPCollection) DeleteUnverified(ctx context.Context, phoneNumber string) (int64, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, bson.M{"phone_number": phoneNumber, "verified": false})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// InsertOTP inserts a new record and assigns its ID
func (c *MongoOTPCollection) InsertOTP(ctx context.Context, rec *models.OTPRecord) error {
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

// FindLatestUnverified returns the most recently created pending record
func (c *MongoOTPCollection) FindLatestUnverified(ctx context.Context, phoneNumber string) (*models.OTPRecord, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return nil, err
	}

	var rec models.OTPRecord
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err = coll.FindOne(ctx, bson.M{"phone_number": phoneNumber, "verified": false}, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// IncrementAttempts atomically bumps the attempts counter and returns the new value
func (c *MongoOTPCollection) IncrementAttempts(ctx context.Context, id primitive.ObjectID) (int, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return 0, err
	}

	var rec models.OTPRecord
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"attempts": 1}}, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return rec.Attempts, nil
}

// MarkVerified flips a pending record to verified. Only one caller can win.
func (c *MongoOTPCollection) MarkVerified(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	coll, err := c.coll(ctx)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "verified": false},
		bson.M{"$set": bson.M{"verified": true, "verified_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOTP deletes a record by ID
func (c *MongoOTPCollection) DeleteOTP(ctx context.Context, id primitive.ObjectID) error {
	coll, err := c.coll(ctx)
	if err != nil {
		return err
	}
	_, err = coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
