package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ChatRepository only handles retention. Message writes belong to the chat
// service, which shares the collection.
type ChatRepository struct {
	collection *mongo.Collection
}

func NewChatRepository(client *mongo.Client, dbName string) *ChatRepository {
	return &ChatRepository{collection: client.Database(dbName).Collection("chat_messages")}
}

func (r *ChatRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	})
	return err
}

func (r *ChatRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{
		"createdAt": bson.M{"$lt": cutoff.UTC().Unix()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
