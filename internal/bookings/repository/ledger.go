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
	"helloev/pkg/model"
)

const (
	UserCollectionName = "Users"
)

// LedgerRepository owns the user-side half of a reservation: the
// current_booking subdocument. Set and Clear are conditional updates keyed
// on the subdocument's present value, which is what enforces the
// one-active-booking rule.
type LedgerRepository interface {
	FindUser(ctx context.Context, userID string) (*model.User, error)
	SetCurrentBooking(ctx context.Context, userID string, booking *model.CurrentBooking) error
	ClearCurrentBooking(ctx context.Context, userID, bookingID string) error
	ClearByBookingID(ctx context.Context, bookingID string) (bool, error)
	FindAllWithBooking(ctx context.Context) ([]*model.User, error)
}

type mongoLedgerRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLedgerRepository(cfg *config.Config) LedgerRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLedgerRepository{
		cfg:        cfg,
		collection: db.Collection(UserCollectionName),
	}
}

func (r *mongoLedgerRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
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

func (r *mongoLedgerRepository) FindUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, userID)
	}

	var user model.User
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// SetCurrentBooking writes the ledger entry only if the user holds none.
// A matched count of zero on an existing user means the slot filter lost to
// a concurrent booking, which surfaces as ErrUserHasBooking.
func (r *mongoLedgerRepository) SetCurrentBooking(ctx context.Context, userID string, booking *model.CurrentBooking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, userID)
	}

	filter := bson.M{
		"_id":             objectID,
		"current_booking": nil,
	}
	update := bson.M{"$set": bson.M{"current_booking": booking}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set current booking: %w", err)
	}

	if result.MatchedCount == 0 {
		exists, err := r.userExists(ctx, objectID)
		if err != nil {
			return err
		}
		if !exists {
			return bookingserrors.ErrUserNotFound
		}
		return bookingserrors.ErrUserHasBooking
	}

	return nil
}

// ClearCurrentBooking clears the ledger entry only while it still carries
// the given booking id. Clearing an already-empty ledger is reported as
// ErrNoActiveBooking; a different booking id as ErrBookingMismatch.
func (r *mongoLedgerRepository) ClearCurrentBooking(ctx context.Context, userID, bookingID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, userID)
	}

	filter := bson.M{
		"_id":                        objectID,
		"current_booking.booking_id": bookingID,
	}
	update := bson.M{"$set": bson.M{"current_booking": nil}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to clear current booking: %w", err)
	}

	if result.MatchedCount == 0 {
		user, err := r.FindUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.CurrentBooking == nil {
			return bookingserrors.ErrNoActiveBooking
		}
		return bookingserrors.ErrBookingMismatch
	}

	return nil
}

// ClearByBookingID clears whichever user's ledger carries the booking id.
// Used by force release and the reconciler, where the holder is unknown.
func (r *mongoLedgerRepository) ClearByBookingID(ctx context.Context, bookingID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"current_booking.booking_id": bookingID}
	update := bson.M{"$set": bson.M{"current_booking": nil}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to clear booking %s: %w", bookingID, err)
	}

	return result.ModifiedCount > 0, nil
}

func (r *mongoLedgerRepository) FindAllWithBooking(ctx context.Context) ([]*model.User, error) {
	filter := bson.M{"current_booking": bson.M{"$ne": nil}}
	cursor, err := r.collection.Find(ctx, filter, optionsFindBatch(reconcileBatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*model.User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (r *mongoLedgerRepository) userExists(ctx context.Context, objectID primitive.ObjectID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objectID})
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}
