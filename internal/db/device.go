package db

import (
	"context"
	"time"

	"github.com/ukydev/fleet-relay/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDeviceCollection implements DeviceCollection for MongoDB
type MongoDeviceCollection struct {
	Store *Store
}

func (c *MongoDeviceCollection) coll(ctx context.Context) (*mongo.Collection, error) {
	return c.Store.Collection(ctx, DeviceCollectionName)
}

// UpsertDevice registers a token, or refreshes and reactivates an existing one
func (c *MongoDeviceCollection) UpsertDevice(ctx context.Context, device models.DeviceToken) (*models.DeviceToken, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"phone_number":        device.PhoneNumber,
			"user_id":             device.UserID,
			"vehicle_id":          device.VehicleID,
			"registration_number": device.RegistrationNumber,
			"chassis_number":      device.ChassisNumber,
			"platform":            device.Platform,
			"device_info":         device.DeviceInfo,
			"active":              true,
			"last_used":           now,
			"updated_at":          now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.DeviceToken
	if err := coll.FindOneAndUpdate(ctx, bson.M{"token": device.Token}, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeactivateDevice marks one token inactive and reports whether it existed
func (c *MongoDeviceCollection) DeactivateDevice(ctx context.Context, token string) (bool, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return false, err
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// DeactivateTokens marks every listed token inactive
func (c *MongoDeviceCollection) DeactivateTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	coll, err := c.coll(ctx)
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateMany(ctx,
		bson.M{"token": bson.M{"$in": tokens}},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// TouchTokens records a successful delivery time
func (c *MongoDeviceCollection) TouchTokens(ctx context.Context, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	coll, err := c.coll(ctx)
	if err != nil {
		return err
	}
	_, err = coll.UpdateMany(ctx,
		bson.M{"token": bson.M{"$in": tokens}},
		bson.M{"$set": bson.M{"last_used": at}},
	)
	return err
}

// FindActiveDevices returns active devices, optionally scoped to one vehicle.
// A vehicle matches on its id, registration number or chassis number.
func (c *MongoDeviceCollection) FindActiveDevices(ctx context.Context, query models.DeviceQuery) ([]models.DeviceToken, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"active": true}
	if query.VehicleID != "" {
		filter["$or"] = bson.A{
			bson.M{"vehicle_id": query.VehicleID},
			bson.M{"registration_number": query.VehicleID},
			bson.M{"chassis_number": query.VehicleID},
		}
	}

	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	devices := []models.DeviceToken{}
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// CountActiveDevices counts active devices
func (c *MongoDeviceCollection) CountActiveDevices(ctx context.Context) (int64, error) {
	coll, err := c.coll(ctx)
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(ctx, bson.M{"active": true})
}
