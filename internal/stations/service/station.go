package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	stationserrors "helloev/internal/stations/errors"
	"helloev/internal/stations/repository"
	"helloev/internal/stations/validator"
	"helloev/pkg/config"
	apperrors "helloev/pkg/errors"
	"helloev/pkg/middleware"
	"helloev/pkg/model"
	"helloev/pkg/sanitizer"
)

type StationService interface {
	Create(ctx context.Context, actor middleware.Actor, station *model.Station) error
	GetByID(ctx context.Context, id string) (*model.StationDetail, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Station, int64, error)
	SearchByAddress(ctx context.Context, query string, limit int, offset int64) ([]*model.Station, int64, error)
	AddBucket(ctx context.Context, actor middleware.Actor, stationID string, bucket *model.SlotBucket) error
	UpdateBucket(ctx context.Context, actor middleware.Actor, stationID, bucketID string, update *model.BucketUpdate) error
}

type stationService struct {
	repo      repository.StationRepository
	validator *validator.StationValidator
	cfg       *config.Config
}

func NewStationService(
	repo repository.StationRepository,
	validator *validator.StationValidator,
	cfg *config.Config,
) StationService {
	return &stationService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *stationService) Create(ctx context.Context, actor middleware.Actor, station *model.Station) error {
	station.OwnerID = actor.ID
	s.sanitize(station)
	s.applyBucketDefaults(station.SlotData)

	if err := s.validator.Validate(station); err != nil {
		s.cfg.Log.Warn("Station validation failed", "error", err)
		return apperrors.Validation("Invalid station input", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Create(ctx, station); err != nil {
		s.cfg.Log.Error("Failed to create station", "error", err)
		return apperrors.Internal("Failed to create station", err)
	}

	s.cfg.Log.Info("Station created successfully",
		"id", station.ID,
		"name", station.Name,
		"owner_id", station.OwnerID,
		"buckets", len(station.SlotData),
	)
	return nil
}

func (s *stationService) GetByID(ctx context.Context, id string) (*model.StationDetail, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Station ID cannot be empty")
	}

	station, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, id)
	}

	return &model.StationDetail{
		Station: station,
		Buckets: bucketAvailability(station),
	}, nil
}

func (s *stationService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Station, int64, error) {
	var count int64
	var stations []*model.Station
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count stations", "error", errCount)
			errCount = apperrors.Internal("Failed to count stations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		stations, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list stations", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve stations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return stations, count, nil
}

func (s *stationService) SearchByAddress(ctx context.Context, query string, limit int, offset int64) ([]*model.Station, int64, error) {
	query = sanitizer.NormalizeSearchQuery(query)
	if query == "" {
		return nil, 0, apperrors.InvalidInput("Search query cannot be empty")
	}

	var count int64
	var stations []*model.Station
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByAddress(ctx, query)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count stations by address", "query", query, "error", errCount)
			errCount = apperrors.Internal("Failed to count stations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		stations, errFind = s.repo.SearchByAddress(ctx, query, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to search stations", "query", query, "error", errFind)
			errFind = apperrors.Internal("Failed to search stations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return stations, count, nil
}

func (s *stationService) AddBucket(ctx context.Context, actor middleware.Actor, stationID string, bucket *model.SlotBucket) error {
	if stationID == "" {
		return apperrors.InvalidInput("Station ID cannot be empty")
	}

	bucket.Time = sanitizer.NormalizeTimeLabel(bucket.Time)
	if bucket.BucketID == "" {
		bucket.BucketID = uuid.NewString()
	}

	if err := s.validator.ValidateBucket(bucket); err != nil {
		s.cfg.Log.Warn("Slot bucket validation failed", "station_id", stationID, "error", err)
		return apperrors.Validation("Invalid slot bucket input", map[string]any{"error": err.Error()})
	}

	if err := s.authorizeOwner(ctx, actor, stationID); err != nil {
		return err
	}

	if err := s.repo.AddBucket(ctx, stationID, *bucket); err != nil {
		switch {
		case errors.Is(err, stationserrors.ErrNotFound):
			return apperrors.NotFoundWithID("Station", stationID)
		case errors.Is(err, stationserrors.ErrInvalidID):
			return apperrors.InvalidInput("Invalid station ID format")
		case errors.Is(err, stationserrors.ErrDuplicateTimeLabel):
			return apperrors.Conflict("A slot bucket with this time label already exists")
		}
		s.cfg.Log.Error("Failed to add slot bucket", "station_id", stationID, "error", err)
		return apperrors.Internal("Failed to add slot bucket", err)
	}

	s.cfg.Log.Info("Slot bucket added",
		"station_id", stationID,
		"bucket_id", bucket.BucketID,
		"time", bucket.Time,
		"total_slots", bucket.TotalSlots,
	)
	return nil
}

func (s *stationService) UpdateBucket(ctx context.Context, actor middleware.Actor, stationID, bucketID string, update *model.BucketUpdate) error {
	if stationID == "" {
		return apperrors.InvalidInput("Station ID cannot be empty")
	}
	if bucketID == "" {
		return apperrors.InvalidInput("Bucket ID cannot be empty")
	}

	update.Time = sanitizer.NormalizeTimeLabel(update.Time)

	if err := s.validator.ValidateBucketUpdate(update); err != nil {
		s.cfg.Log.Warn("Slot bucket update validation failed",
			"station_id", stationID,
			"bucket_id", bucketID,
			"error", err,
		)
		return apperrors.Validation("Invalid slot bucket update", map[string]any{"error": err.Error()})
	}

	station, err := s.repo.FindByID(ctx, stationID)
	if err != nil {
		return s.mapLookupError(err, stationID)
	}
	if err := s.checkOwner(actor, station); err != nil {
		return err
	}

	bucket := station.FindBucketByID(bucketID)
	if bucket == nil {
		return apperrors.NotFoundWithID("Slot bucket", bucketID)
	}
	if update.Time != "" && update.Time != bucket.Time {
		if existing := station.FindBucket(update.Time); existing != nil {
			return apperrors.Conflict("A slot bucket with this time label already exists")
		}
	}
	// Capacity may shrink below current occupancy. Existing reservations with
	// out-of-range ordinals stay valid until released; only new reservations
	// see the reduced range.
	if update.TotalSlots != nil && *update.TotalSlots < len(bucket.BookedSlots) {
		s.cfg.Log.Warn("Shrinking bucket below current occupancy",
			"station_id", stationID,
			"bucket_id", bucketID,
			"total_slots", *update.TotalSlots,
			"occupied", len(bucket.BookedSlots),
		)
	}

	if err := s.repo.UpdateBucket(ctx, stationID, bucketID, update.Time, update.TotalSlots); err != nil {
		switch {
		case errors.Is(err, stationserrors.ErrNotFound):
			return apperrors.NotFoundWithID("Station", stationID)
		case errors.Is(err, stationserrors.ErrBucketNotFound):
			return apperrors.NotFoundWithID("Slot bucket", bucketID)
		case errors.Is(err, stationserrors.ErrInvalidID):
			return apperrors.InvalidInput("Invalid station ID format")
		}
		s.cfg.Log.Error("Failed to update slot bucket",
			"station_id", stationID,
			"bucket_id", bucketID,
			"error", err,
		)
		return apperrors.Internal("Failed to update slot bucket", err)
	}

	s.cfg.Log.Info("Slot bucket updated", "station_id", stationID, "bucket_id", bucketID)
	return nil
}

func (s *stationService) authorizeOwner(ctx context.Context, actor middleware.Actor, stationID string) error {
	station, err := s.repo.FindByID(ctx, stationID)
	if err != nil {
		return s.mapLookupError(err, stationID)
	}
	return s.checkOwner(actor, station)
}

func (s *stationService) checkOwner(actor middleware.Actor, station *model.Station) error {
	if actor.Role == middleware.RoleAdmin {
		return nil
	}
	if station.OwnerID != actor.ID {
		return apperrors.Forbidden("Only the station owner can modify its slot buckets")
	}
	return nil
}

func (s *stationService) mapLookupError(err error, id string) error {
	if errors.Is(err, stationserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Station", id)
	}
	if errors.Is(err, stationserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid station ID format")
	}
	return apperrors.Internal("Failed to retrieve station", err)
}

func (s *stationService) sanitize(station *model.Station) {
	station.Name = sanitizer.NormalizeName(station.Name)
	station.Address = sanitizer.NormalizeAddress(station.Address)
	for i := range station.SlotData {
		station.SlotData[i].Time = sanitizer.NormalizeTimeLabel(station.SlotData[i].Time)
	}
}

func (s *stationService) applyBucketDefaults(buckets []model.SlotBucket) {
	for i := range buckets {
		if buckets[i].BucketID == "" {
			buckets[i].BucketID = uuid.NewString()
		}
		if buckets[i].BookedSlots == nil {
			buckets[i].BookedSlots = []model.Reservation{}
		}
	}
}

func bucketAvailability(station *model.Station) []model.BucketAvailability {
	buckets := make([]model.BucketAvailability, 0, len(station.SlotData))
	for i := range station.SlotData {
		b := &station.SlotData[i]
		available := b.TotalSlots - len(b.BookedSlots)
		if available < 0 {
			available = 0
		}
		buckets = append(buckets, model.BucketAvailability{
			BucketID:       b.BucketID,
			Time:           b.Time,
			TotalSlots:     b.TotalSlots,
			BookedOrdinals: b.Occupied(),
			Available:      available,
		})
	}
	return buckets
}
