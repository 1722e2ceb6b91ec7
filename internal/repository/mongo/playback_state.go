package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"radiostream/internal/domain"
)

// playbackStateID is the _id of the singleton state row.
const playbackStateID = "current"

type PlaybackStateRepository struct {
	collection *mongo.Collection
}

type playbackStateDoc struct {
	ID            string  `bson:"_id"`
	CurrentSongID string  `bson:"currentSongId,omitempty"`
	Playing       bool    `bson:"playing"`
	Volume        int     `bson:"volume"`
	Position      float64 `bson:"position"`
}

func NewPlaybackStateRepository(client *mongo.Client, dbName string) *PlaybackStateRepository {
	return &PlaybackStateRepository{collection: client.Database(dbName).Collection("playback_state")}
}

// GetCurrent finds the singleton row, creating it with defaults on first
// use.
func (r *PlaybackStateRepository) GetCurrent(ctx context.Context) (domain.PlaybackState, error) {
	var doc playbackStateDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": playbackStateID}).Decode(&doc)
	if err == nil {
		return playbackStateFromDoc(doc), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.PlaybackState{}, err
	}

	state := domain.PlaybackState{Volume: 50}
	if err := r.Save(ctx, state); err != nil {
		return domain.PlaybackState{}, err
	}
	return state, nil
}

func (r *PlaybackStateRepository) Save(ctx context.Context, state domain.PlaybackState) error {
	doc := playbackStateDoc{
		ID:            playbackStateID,
		CurrentSongID: string(state.CurrentSongID),
		Playing:       state.Playing,
		Volume:        state.Volume,
		Position:      state.Position,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": playbackStateID}, doc, opts)
	return err
}

func playbackStateFromDoc(doc playbackStateDoc) domain.PlaybackState {
	return domain.PlaybackState{
		CurrentSongID: domain.SongID(doc.CurrentSongID),
		Playing:       doc.Playing,
		Volume:        doc.Volume,
		Position:      doc.Position,
	}
}
