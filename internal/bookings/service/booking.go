package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "helloev/internal/bookings/errors"
	"helloev/internal/bookings/repository"
	"helloev/internal/bookings/validator"
	"helloev/internal/events"
	"helloev/pkg/config"
	apperrors "helloev/pkg/errors"
	"helloev/pkg/middleware"
	"helloev/pkg/model"
	"helloev/pkg/retry"
	"helloev/pkg/sanitizer"
)

type BookingService interface {
	Reserve(ctx context.Context, actor middleware.Actor, req *model.ReserveRequest) (*model.ReserveResponse, error)
	Release(ctx context.Context, actor middleware.Actor, req *model.ReleaseRequest) (*model.ReleaseResponse, error)
	ForceRelease(ctx context.Context, actor middleware.Actor, req *model.ForceReleaseRequest) (*model.ReleaseResponse, error)
	GetCurrentBooking(ctx context.Context, actor middleware.Actor, userID string) (*model.CurrentBooking, error)
}

type bookingService struct {
	slots     repository.SlotRepository
	ledger    repository.LedgerRepository
	validator *validator.BookingValidator
	publisher events.Publisher
	retry     retry.Policy
	cfg       *config.Config
}

func NewBookingService(
	slots repository.SlotRepository,
	ledger repository.LedgerRepository,
	validator *validator.BookingValidator,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		slots:     slots,
		ledger:    ledger,
		validator: validator,
		publisher: publisher,
		retry:     retry.NewPolicy(cfg.RetryMaxAttempts, cfg.RetryInitialDelay),
		cfg:       cfg,
	}
}

// Reserve books one (station, time, ordinal) unit for the actor. The ledger
// write and the slot write happen in one transaction, ledger first: if the
// user already holds a booking the transaction aborts before the slot side
// is touched, and a slot conflict rolls the ledger write back.
func (s *bookingService) Reserve(ctx context.Context, actor middleware.Actor, req *model.ReserveRequest) (*model.ReserveResponse, error) {
	req.Time = sanitizer.NormalizeTimeLabel(req.Time)
	req.UserName = sanitizer.NormalizeName(req.UserName)

	if err := s.validator.ValidateReserve(req); err != nil {
		s.cfg.Log.Warn("Reserve validation failed", "error", err)
		return nil, apperrors.Validation("Invalid reservation input", map[string]any{"error": err.Error()})
	}
	if err := s.checkActorIdentity(actor, req.UserID); err != nil {
		return nil, err
	}

	station, err := s.slots.FindStation(ctx, req.StationID)
	if err != nil {
		return nil, s.mapStationError(err, req.StationID)
	}

	bucket := station.FindBucket(req.Time)
	if bucket == nil {
		return nil, apperrors.NotFoundWithID("Slot bucket", req.Time)
	}
	if req.Ordinal > bucket.TotalSlots {
		return nil, apperrors.InvalidInput("Slot number is out of range for this time window")
	}

	bookingID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	reservation := model.Reservation{
		UserID:    req.UserID,
		UserName:  req.UserName,
		Ordinal:   req.Ordinal,
		BookingID: bookingID,
		CreatedAt: now,
	}
	currentBooking := &model.CurrentBooking{
		BookingID:      bookingID,
		StationID:      station.ID,
		StationName:    station.Name,
		StationAddress: station.Address,
		Time:           req.Time,
		Ordinal:        req.Ordinal,
		CreatedAt:      now,
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.slots.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			if err := s.ledger.SetCurrentBooking(sessCtx, req.UserID, currentBooking); err != nil {
				return s.mapLedgerError(err, req.UserID)
			}
			if err := s.slots.Reserve(sessCtx, req.StationID, req.Time, reservation); err != nil {
				return s.mapReserveError(ctx, err, req)
			}
			return nil
		})
	})
	if err != nil {
		s.cfg.Log.Warn("Reservation failed",
			"station_id", req.StationID,
			"time", req.Time,
			"ordinal", req.Ordinal,
			"user_id", req.UserID,
			"error", err,
		)
		return nil, err
	}

	s.publisher.PublishReserved(ctx, currentBooking, req.UserID)

	s.cfg.Log.Info("Reservation created",
		"booking_id", bookingID,
		"station_id", req.StationID,
		"time", req.Time,
		"ordinal", req.Ordinal,
		"user_id", req.UserID,
	)
	return &model.ReserveResponse{BookingID: bookingID}, nil
}

// Release frees the actor's reservation. Releasing a booking that is already
// gone succeeds, so retried cancellations are harmless; a booking id that
// does not match the ledger is a conflict.
func (s *bookingService) Release(ctx context.Context, actor middleware.Actor, req *model.ReleaseRequest) (*model.ReleaseResponse, error) {
	req.Time = sanitizer.NormalizeTimeLabel(req.Time)

	if err := s.validator.ValidateRelease(req); err != nil {
		s.cfg.Log.Warn("Release validation failed", "error", err)
		return nil, apperrors.Validation("Invalid release input", map[string]any{"error": err.Error()})
	}
	if err := s.checkActorIdentity(actor, req.UserID); err != nil {
		return nil, err
	}

	var alreadyReleased bool
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		alreadyReleased = false
		return s.slots.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			if _, err := s.slots.Release(sessCtx, req.StationID, req.Time, req.BookingID); err != nil {
				if errors.Is(err, bookingserrors.ErrInvalidID) {
					return apperrors.InvalidInput("Invalid station ID format")
				}
				return apperrors.Internal("Failed to release slot", err)
			}

			err := s.ledger.ClearCurrentBooking(sessCtx, req.UserID, req.BookingID)
			if err != nil {
				switch {
				case errors.Is(err, bookingserrors.ErrNoActiveBooking):
					// Both sides already clear: an idempotent replay.
					alreadyReleased = true
					return nil
				case errors.Is(err, bookingserrors.ErrBookingMismatch):
					return apperrors.Conflict("Booking ID does not match your active booking")
				case errors.Is(err, bookingserrors.ErrUserNotFound):
					return apperrors.NotFoundWithID("User", req.UserID)
				case errors.Is(err, bookingserrors.ErrInvalidID):
					return apperrors.InvalidInput("Invalid user ID format")
				}
				return apperrors.Internal("Failed to clear booking ledger", err)
			}
			return nil
		})
	})
	if err != nil {
		s.cfg.Log.Warn("Release failed",
			"booking_id", req.BookingID,
			"user_id", req.UserID,
			"error", err,
		)
		return nil, err
	}

	if !alreadyReleased {
		s.publisher.PublishReleased(ctx, events.EventTypeReleased, events.BookingEvent{
			BookingID: req.BookingID,
			StationID: req.StationID,
			UserID:    req.UserID,
			Time:      req.Time,
			Ordinal:   req.Ordinal,
		})
	}

	s.cfg.Log.Info("Reservation released",
		"booking_id", req.BookingID,
		"user_id", req.UserID,
		"already_released", alreadyReleased,
	)
	return &model.ReleaseResponse{Success: true}, nil
}

// ForceRelease tears down whatever reservation occupies the slot and clears
// the holder's ledger entry. Admin only.
func (s *bookingService) ForceRelease(ctx context.Context, actor middleware.Actor, req *model.ForceReleaseRequest) (*model.ReleaseResponse, error) {
	if actor.Role != middleware.RoleAdmin {
		return nil, apperrors.Forbidden("Only administrators can force-release a slot")
	}

	req.Time = sanitizer.NormalizeTimeLabel(req.Time)

	if err := s.validator.ValidateForceRelease(req); err != nil {
		s.cfg.Log.Warn("Force release validation failed", "error", err)
		return nil, apperrors.Validation("Invalid force release input", map[string]any{"error": err.Error()})
	}

	var victim *model.Reservation
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.slots.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			released, err := s.slots.ReleaseByOrdinal(sessCtx, req.StationID, req.Time, req.Ordinal)
			if err != nil {
				switch {
				case errors.Is(err, bookingserrors.ErrStationNotFound):
					return apperrors.NotFoundWithID("Station", req.StationID)
				case errors.Is(err, bookingserrors.ErrBucketNotFound):
					return apperrors.NotFoundWithID("Slot bucket", req.Time)
				case errors.Is(err, bookingserrors.ErrReservationNotFound):
					return apperrors.NotFound("Reservation")
				case errors.Is(err, bookingserrors.ErrInvalidID):
					return apperrors.InvalidInput("Invalid station ID format")
				}
				return apperrors.Internal("Failed to force-release slot", err)
			}
			victim = released

			if _, err := s.ledger.ClearByBookingID(sessCtx, released.BookingID); err != nil {
				return apperrors.Internal("Failed to clear booking ledger", err)
			}
			return nil
		})
	})
	if err != nil {
		s.cfg.Log.Warn("Force release failed",
			"station_id", req.StationID,
			"time", req.Time,
			"ordinal", req.Ordinal,
			"error", err,
		)
		return nil, err
	}

	s.publisher.PublishReleased(ctx, events.EventTypeForceReleased, events.BookingEvent{
		BookingID: victim.BookingID,
		StationID: req.StationID,
		UserID:    victim.UserID,
		Time:      req.Time,
		Ordinal:   req.Ordinal,
	})

	s.cfg.Log.Info("Reservation force-released",
		"booking_id", victim.BookingID,
		"station_id", req.StationID,
		"time", req.Time,
		"ordinal", req.Ordinal,
		"admin_id", actor.ID,
	)
	return &model.ReleaseResponse{Success: true}, nil
}

// GetCurrentBooking returns the user's active booking, or nil when there is
// none. Users may only read their own ledger; admins may read any.
func (s *bookingService) GetCurrentBooking(ctx context.Context, actor middleware.Actor, userID string) (*model.CurrentBooking, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}
	if actor.Role != middleware.RoleAdmin && actor.ID != userID {
		return nil, apperrors.Forbidden("You can only view your own booking")
	}

	user, err := s.ledger.FindUser(ctx, userID)
	if err != nil {
		return nil, s.mapLedgerError(err, userID)
	}

	return user.CurrentBooking, nil
}

func (s *bookingService) checkActorIdentity(actor middleware.Actor, userID string) error {
	if actor.Role == middleware.RoleAdmin {
		return nil
	}
	if actor.ID != userID {
		return apperrors.Forbidden("You can only manage your own bookings")
	}
	return nil
}

func (s *bookingService) mapStationError(err error, stationID string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrStationNotFound):
		return apperrors.NotFoundWithID("Station", stationID)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid station ID format")
	}
	return apperrors.Internal("Failed to retrieve station", err)
}

func (s *bookingService) mapLedgerError(err error, userID string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrUserNotFound):
		return apperrors.NotFoundWithID("User", userID)
	case errors.Is(err, bookingserrors.ErrUserHasBooking):
		return apperrors.Conflict("You already have an active booking; release it first")
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid user ID format")
	}
	return apperrors.Internal("Failed to update booking ledger", err)
}

// mapReserveError turns a slot-side failure into its API error. A taken
// ordinal includes the bucket's current occupancy so the client can offer
// alternatives without a second round trip.
func (s *bookingService) mapReserveError(ctx context.Context, err error, req *model.ReserveRequest) error {
	switch {
	case errors.Is(err, bookingserrors.ErrSlotTaken):
		details := map[string]any{
			"station_id": req.StationID,
			"time":       req.Time,
			"ordinal":    req.Ordinal,
		}
		if station, findErr := s.slots.FindStation(ctx, req.StationID); findErr == nil {
			if bucket := station.FindBucket(req.Time); bucket != nil {
				details["booked_ordinals"] = bucket.Occupied()
				details["total_slots"] = bucket.TotalSlots
			}
		}
		return apperrors.Conflict("This slot is already booked").WithDetails(details)
	case errors.Is(err, bookingserrors.ErrStationNotFound):
		return apperrors.NotFoundWithID("Station", req.StationID)
	case errors.Is(err, bookingserrors.ErrBucketNotFound):
		return apperrors.NotFoundWithID("Slot bucket", req.Time)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid station ID format")
	}
	return apperrors.Internal("Failed to reserve slot", err)
}
