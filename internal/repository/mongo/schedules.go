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

type ScheduleRepository struct {
	collection *mongo.Collection
}

type scheduleDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	CronExpr  string `bson:"cronExpr"`
	Volume    int    `bson:"volume"`
	SongCount int    `bson:"songCount"`
	Active    bool   `bson:"active"`
	LastRun   int64  `bson:"lastRun,omitempty"`
	NextRun   int64  `bson:"nextRun,omitempty"`
}

func NewScheduleRepository(client *mongo.Client, dbName string) *ScheduleRepository {
	return &ScheduleRepository{collection: client.Database(dbName).Collection("schedules")}
}

func (r *ScheduleRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "nextRun", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *ScheduleRepository) Get(ctx context.Context, id domain.ScheduleID) (domain.Schedule, error) {
	var doc scheduleDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Schedule{}, domain.ErrNotFound
		}
		return domain.Schedule{}, err
	}
	return scheduleFromDoc(doc), nil
}

func (r *ScheduleRepository) List(ctx context.Context) ([]domain.Schedule, error) {
	return r.find(ctx, bson.M{})
}

func (r *ScheduleRepository) ListActive(ctx context.Context) ([]domain.Schedule, error) {
	return r.find(ctx, bson.M{"active": true})
}

func (r *ScheduleRepository) find(ctx context.Context, filter bson.M) ([]domain.Schedule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []scheduleDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	schedules := make([]domain.Schedule, 0, len(docs))
	for _, doc := range docs {
		schedules = append(schedules, scheduleFromDoc(doc))
	}
	return schedules, nil
}

func (r *ScheduleRepository) Create(ctx context.Context, s domain.Schedule) error {
	_, err := r.collection.InsertOne(ctx, scheduleToDoc(s))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *ScheduleRepository) Update(ctx context.Context, s domain.Schedule) error {
	doc := scheduleToDoc(s)
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{
			"name":      doc.Name,
			"cronExpr":  doc.CronExpr,
			"volume":    doc.Volume,
			"songCount": doc.SongCount,
			"active":    doc.Active,
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

func (r *ScheduleRepository) Delete(ctx context.Context, id domain.ScheduleID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) SetLastRun(ctx context.Context, id domain.ScheduleID, at time.Time) error {
	return r.setRunField(ctx, id, "lastRun", at)
}

func (r *ScheduleRepository) SetNextRun(ctx context.Context, id domain.ScheduleID, at time.Time) error {
	return r.setRunField(ctx, id, "nextRun", at)
}

func (r *ScheduleRepository) setRunField(ctx context.Context, id domain.ScheduleID, field string, at time.Time) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{field: at.UTC().Unix()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scheduleToDoc(s domain.Schedule) scheduleDoc {
	doc := scheduleDoc{
		ID:        string(s.ID),
		Name:      s.Name,
		CronExpr:  s.CronExpr,
		Volume:    s.Volume,
		SongCount: s.SongCount,
		Active:    s.Active,
	}
	if !s.LastRun.IsZero() {
		doc.LastRun = s.LastRun.UTC().Unix()
	}
	if !s.NextRun.IsZero() {
		doc.NextRun = s.NextRun.UTC().Unix()
	}
	return doc
}

func scheduleFromDoc(doc scheduleDoc) domain.Schedule {
	s := domain.Schedule{
		ID:        domain.ScheduleID(doc.ID),
		Name:      doc.Name,
		CronExpr:  doc.CronExpr,
		Volume:    doc.Volume,
		SongCount: doc.SongCount,
		Active:    doc.Active,
	}
	if doc.LastRun > 0 {
		s.LastRun = timeFromUnix(doc.LastRun)
	}
	if doc.NextRun > 0 {
		s.NextRun = timeFromUnix(doc.NextRun)
	}
	return s
}
