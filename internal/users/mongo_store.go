package users

import (
	"context"
	"time"

	"github.com/munirahkamaluddin/realm-dotnet/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store using a MongoDB collection keyed by identity.
type MongoStore struct {
	col *mongo.Collection
}

// NewMongoStore creates a new store for the given collection
func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (r *MongoStore) Save(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	filter := bson.M{"_id": u.Identity}
	upd := bson.M{
		"$set": bson.M{
			"refreshToken": u.RefreshToken,
			"serverUri":    u.ServerURI,
			"updatedAt":    u.UpdatedAt,
		},
		"$setOnInsert": bson.M{"createdAt": u.CreatedAt},
	}
	_, err := r.col.UpdateOne(ctx, filter, upd, options.Update().SetUpsert(true))
	return err
}

func (r *MongoStore) Get(ctx context.Context, identity string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": identity}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoStore) Delete(ctx context.Context, identity string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": identity})
	return err
}

func (r *MongoStore) List(ctx context.Context) ([]*models.User, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
