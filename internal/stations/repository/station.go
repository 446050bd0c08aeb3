package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	stationserrors "helloev/internal/stations/errors"
	"helloev/pkg/config"
	mongotx "helloev/pkg/db/mongo"
	"helloev/pkg/model"
)

const (
	CollectionName = "Stations"
)

type mongoStationRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type StationRepository interface {
	Create(ctx context.Context, station *model.Station) error
	FindByID(ctx context.Context, id string) (*model.Station, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Station, error)
	Count(ctx context.Context) (int64, error)
	SearchByAddress(ctx context.Context, query string, limit int, offset int64) ([]*model.Station, error)
	CountByAddress(ctx context.Context, query string) (int64, error)
	AddBucket(ctx context.Context, stationID string, bucket model.SlotBucket) error
	UpdateBucket(ctx context.Context, stationID, bucketID string, timeLabel string, totalSlots *int) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoStationRepository(cfg *config.Config) StationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoStationRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless we are already inside
// a transaction; a SessionContext cannot be wrapped without breaking
// transaction semantics.
func (r *mongoStationRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if remaining := time.Until(deadline); remaining < timeout {
			return context.WithTimeout(ctx, remaining)
		}
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoStationRepository) Create(ctx context.Context, station *model.Station) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	station.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if station.SlotData == nil {
		station.SlotData = []model.SlotBucket{}
	}

	result, err := r.collection.InsertOne(ctx, station)
	if err != nil {
		return fmt.Errorf("failed to create station: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		station.ID = oid.Hex()
	}
	return nil
}

func (r *mongoStationRepository) FindByID(ctx context.Context, id string) (*model.Station, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", stationserrors.ErrInvalidID, id)
	}

	var station model.Station
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&station)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, stationserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find station: %w", err)
	}

	return &station, nil
}

func (r *mongoStationRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Station, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find stations: %w", err)
	}
	defer cursor.Close(ctx)

	var stations []*model.Station
	if err = cursor.All(ctx, &stations); err != nil {
		return nil, fmt.Errorf("failed to decode stations: %w", err)
	}

	return stations, nil
}

func (r *mongoStationRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count stations: %w", err)
	}
	return count, nil
}

func (r *mongoStationRepository) SearchByAddress(ctx context.Context, query string, limit int, offset int64) ([]*model.Station, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, addressFilter(query), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search stations: %w", err)
	}
	defer cursor.Close(ctx)

	var stations []*model.Station
	if err = cursor.All(ctx, &stations); err != nil {
		return nil, fmt.Errorf("failed to decode stations: %w", err)
	}

	return stations, nil
}

func (r *mongoStationRepository) CountByAddress(ctx context.Context, query string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, addressFilter(query))
	if err != nil {
		return 0, fmt.Errorf("failed to count stations by address: %w", err)
	}
	return count, nil
}

func (r *mongoStationRepository) AddBucket(ctx context.Context, stationID string, bucket model.SlotBucket) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(stationID)
	if err != nil {
		return fmt.Errorf("%w: %s", stationserrors.ErrInvalidID, stationID)
	}

	if bucket.BookedSlots == nil {
		bucket.BookedSlots = []model.Reservation{}
	}

	// The time-label guard in the filter makes the duplicate check and the
	// append a single atomic step.
	filter := bson.M{
		"_id":            objectID,
		"slot_data.time": bson.M{"$ne": bucket.Time},
	}
	update := bson.M{"$push": bson.M{"slot_data": bucket}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to add slot bucket: %w", err)
	}

	if result.MatchedCount == 0 {
		exists, err := r.exists(ctx, objectID)
		if err != nil {
			return err
		}
		if !exists {
			return stationserrors.ErrNotFound
		}
		return stationserrors.ErrDuplicateTimeLabel
	}

	return nil
}

func (r *mongoStationRepository) UpdateBucket(ctx context.Context, stationID, bucketID string, timeLabel string, totalSlots *int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(stationID)
	if err != nil {
		return fmt.Errorf("%w: %s", stationserrors.ErrInvalidID, stationID)
	}

	set := bson.M{}
	if timeLabel != "" {
		set["slot_data.$.time"] = timeLabel
	}
	if totalSlots != nil {
		set["slot_data.$.total_slots"] = *totalSlots
	}
	if len(set) == 0 {
		return nil
	}

	filter := bson.M{
		"_id":                 objectID,
		"slot_data.bucket_id": bucketID,
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update slot bucket: %w", err)
	}

	if result.MatchedCount == 0 {
		exists, err := r.exists(ctx, objectID)
		if err != nil {
			return err
		}
		if !exists {
			return stationserrors.ErrNotFound
		}
		return stationserrors.ErrBucketNotFound
	}

	return nil
}

func (r *mongoStationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoStationRepository) exists(ctx context.Context, objectID primitive.ObjectID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objectID})
	if err != nil {
		return false, fmt.Errorf("failed to check station existence: %w", err)
	}
	return count > 0, nil
}

func addressFilter(query string) bson.M {
	return bson.M{
		"address": bson.M{"$regex": escapeRegexSpecialChars(query), "$options": "i"},
	}
}

// escapeRegexSpecialChars escapes regex metacharacters so a search query is
// matched literally and cannot trigger catastrophic backtracking.
func escapeRegexSpecialChars(s string) string {
	specialChars := regexp.MustCompile(`[.*+?^$()[\]{}|\\]`)
	return specialChars.ReplaceAllStringFunc(s, func(match string) string {
		return "\\" + match
	})
}
