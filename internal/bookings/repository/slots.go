package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "helloev/internal/bookings/errors"
	"helloev/pkg/config"
	mongotx "helloev/pkg/db/mongo"
	"helloev/pkg/model"
)

const (
	StationCollectionName = "Stations"
)

// SlotRepository owns the station-side half of a reservation: the entries in
// slot_data.booked_slots. Every mutation is a conditional update so that two
// racing writers can never both succeed.
type SlotRepository interface {
	FindStation(ctx context.Context, stationID string) (*model.Station, error)
	Reserve(ctx context.Context, stationID, timeLabel string, reservation model.Reservation) error
	Release(ctx context.Context, stationID, timeLabel, bookingID string) (bool, error)
	ReleaseByOrdinal(ctx context.Context, stationID, timeLabel string, ordinal int) (*model.Reservation, error)
	FindAllStations(ctx context.Context) ([]*model.Station, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoSlotRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(StationCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSlotRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoSlotRepository) FindStation(ctx context.Context, stationID string) (*model.Station, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(stationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, stationID)
	}

	var station model.Station
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&station)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrStationNotFound
		}
		return nil, fmt.Errorf("failed to find station: %w", err)
	}

	return &station, nil
}

// Reserve appends the reservation to the bucket's booked_slots only if no
// reservation with the same ordinal is present. The $elemMatch guard and the
// $push run as one document-level atomic step, so exactly one of N
// concurrent attempts on the same ordinal succeeds.
func (r *mongoSlotRepository) Reserve(ctx context.Context, stationID, timeLabel string, reservation model.Reservation) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(stationID)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, stationID)
	}

	filter := bson.M{
		"_id": objectID,
		"slot_data": bson.M{
			"$elemMatch": bson.M{
				"time": timeLabel,
				"booked_slots": bson.M{
					"$not": bson.M{"$elemMatch": bson.M{"ordinal": reservation.Ordinal}},
				},
			},
		},
	}
	update := bson.M{
		"$push": bson.M{"slot_data.$.booked_slots": reservation},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}

	if result.MatchedCount == 0 {
		return r.classifyReserveFailure(ctx, objectID, timeLabel)
	}

	return nil
}

// classifyReserveFailure re-reads the station to tell an occupied ordinal
// apart from a missing station or bucket.
func (r *mongoSlotRepository) classifyReserveFailure(ctx context.Context, objectID primitive.ObjectID, timeLabel string) error {
	var station model.Station
	err := r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&station)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return bookingserrors.ErrStationNotFound
		}
		return fmt.Errorf("failed to classify reserve failure: %w", err)
	}

	if station.FindBucket(timeLabel) == nil {
		return bookingserrors.ErrBucketNotFound
	}
	return bookingserrors.ErrSlotTaken
}

// Release removes the reservation with the given booking id from the bucket.
// A missing reservation is not an error; the bool reports whether anything
// was removed so the caller can decide.
func (r *mongoSlotRepository) Release(ctx context.Context, stationID, timeLabel, bookingID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(stationID)
	if err != nil {
		return false, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, stationID)
	}

	filter := bson.M{
		"_id":            objectID,
		"slot_data.time": timeLabel,
	}
	update := bson.M{
		"$pull": bson.M{"slot_data.$.booked_slots": bson.M{"booking_id": bookingID}},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to release slot: %w", err)
	}

	return result.ModifiedCount > 0, nil
}

// ReleaseByOrdinal removes whatever reservation occupies the ordinal and
// returns it, so the caller can clear the holder's ledger entry.
func (r *mongoSlotRepository) ReleaseByOrdinal(ctx context.Context, stationID, timeLabel string, ordinal int) (*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(stationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, stationID)
	}

	var station model.Station
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&station)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrStationNotFound
		}
		return nil, fmt.Errorf("failed to find station: %w", err)
	}

	bucket := station.FindBucket(timeLabel)
	if bucket == nil {
		return nil, bookingserrors.ErrBucketNotFound
	}

	var victim *model.Reservation
	for i := range bucket.BookedSlots {
		if bucket.BookedSlots[i].Ordinal == ordinal {
			victim = &bucket.BookedSlots[i]
			break
		}
	}
	if victim == nil {
		return nil, bookingserrors.ErrReservationNotFound
	}

	removed, err := r.Release(ctx, stationID, timeLabel, victim.BookingID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, bookingserrors.ErrReservationNotFound
	}

	return victim, nil
}

func (r *mongoSlotRepository) FindAllStations(ctx context.Context) ([]*model.Station, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, optionsFindBatch(reconcileBatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to scan stations: %w", err)
	}
	defer cursor.Close(ctx)

	var stations []*model.Station
	if err = cursor.All(ctx, &stations); err != nil {
		return nil, fmt.Errorf("failed to decode stations: %w", err)
	}
	return stations, nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
