package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"radiostream/internal/domain"
)

// queuePriority is the airing order for unplayed songs: starred requests
// first, then by vote count, ties broken by submission time.
var queuePriority = bson.D{
	{Key: "starred", Value: -1},
	{Key: "votes", Value: -1},
	{Key: "addedAt", Value: 1},
}

type SongRepository struct {
	collection *mongo.Collection
}

type songDoc struct {
	ID         string `bson:"_id"`
	Title      string `bson:"title"`
	Artist     string `bson:"artist,omitempty"`
	URL        string `bson:"url"`
	VideoID    string `bson:"videoId,omitempty"`
	Duration   int    `bson:"duration,omitempty"`
	Thumbnail  string `bson:"thumbnail,omitempty"`
	Dedication string `bson:"dedication,omitempty"`
	Starred    bool   `bson:"starred"`
	Votes      int    `bson:"votes"`
	AddedAt    int64  `bson:"addedAt"`
	Played     bool   `bson:"played"`
	PlayedAt   int64  `bson:"playedAt,omitempty"`
}

func NewSongRepository(client *mongo.Client, dbName string) *SongRepository {
	return &SongRepository{collection: client.Database(dbName).Collection("songs")}
}

func (r *SongRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "played", Value: 1}, {Key: "starred", Value: -1}, {Key: "votes", Value: -1}, {Key: "addedAt", Value: 1}}},
		{Keys: bson.D{{Key: "playedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *SongRepository) TopUnplayed(ctx context.Context) (domain.Song, error) {
	opts := options.FindOne().SetSort(queuePriority)
	var doc songDoc
	if err := r.collection.FindOne(ctx, bson.M{"played": false}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Song{}, domain.ErrQueueEmpty
		}
		return domain.Song{}, err
	}
	return songFromDoc(doc), nil
}

func (r *SongRepository) Get(ctx context.Context, id domain.SongID) (domain.Song, error) {
	var doc songDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Song{}, domain.ErrNotFound
		}
		return domain.Song{}, err
	}
	return songFromDoc(doc), nil
}

// Reserve flips the song to played before it airs so concurrent votes or
// duplicate schedule firings cannot pick it again. Only an unplayed song
// can be reserved.
func (r *SongRepository) Reserve(ctx context.Context, id domain.SongID, at time.Time) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": string(id), "played": false},
		bson.M{"$set": bson.M{
			"played":   true,
			"playedAt": at.UTC().Unix(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Restore puts a reserved song back into the queue after a failed
// pre-fetch, keeping its original priority.
func (r *SongRepository) Restore(ctx context.Context, id domain.SongID) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{
			"$set":   bson.M{"played": false},
			"$unset": bson.M{"playedAt": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SongRepository) RecentlyPlayed(ctx context.Context, limit int) ([]domain.Song, error) {
	if limit <= 0 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "playedAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{"played": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []songDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return songsFromDocs(docs), nil
}

func (r *SongRepository) Queue(ctx context.Context) ([]domain.Song, error) {
	opts := options.Find().SetSort(queuePriority)
	cursor, err := r.collection.Find(ctx, bson.M{"played": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []songDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return songsFromDocs(docs), nil
}

func songFromDoc(doc songDoc) domain.Song {
	song := domain.Song{
		ID:         domain.SongID(doc.ID),
		Title:      doc.Title,
		Artist:     doc.Artist,
		URL:        doc.URL,
		VideoID:    doc.VideoID,
		Duration:   doc.Duration,
		Thumbnail:  doc.Thumbnail,
		Dedication: doc.Dedication,
		Starred:    doc.Starred,
		Votes:      doc.Votes,
		AddedAt:    timeFromUnix(doc.AddedAt),
		Played:     doc.Played,
	}
	if doc.PlayedAt > 0 {
		at := timeFromUnix(doc.PlayedAt)
		song.PlayedAt = &at
	}
	return song
}

func songsFromDocs(docs []songDoc) []domain.Song {
	songs := make([]domain.Song, 0, len(docs))
	for _, doc := range docs {
		songs = append(songs, songFromDoc(doc))
	}
	return songs
}
