package service

import (
	"context"
	"sync"
	"testing"
	"time"

	bookingserrors "helloev/internal/bookings/errors"
	"helloev/internal/bookings/validator"
	"helloev/internal/events"
	"helloev/pkg/config"
	mongotx "helloev/pkg/db/mongo"
	apperrors "helloev/pkg/errors"
	"helloev/pkg/logger"
	"helloev/pkg/middleware"
	"helloev/pkg/model"
)

const (
	testStationID = "507f1f77bcf86cd799439011"
	testUserID    = "64a7f0a1b4f3c26d58e01234"
	otherUserID   = "64a7f0a1b4f3c26d58e09999"
)

type mockSlotRepository struct {
	findStationFunc      func(ctx context.Context, stationID string) (*model.Station, error)
	reserveFunc          func(ctx context.Context, stationID, timeLabel string, reservation model.Reservation) error
	releaseFunc          func(ctx context.Context, stationID, timeLabel, bookingID string) (bool, error)
	releaseByOrdinalFunc func(ctx context.Context, stationID, timeLabel string, ordinal int) (*model.Reservation, error)
}

func (m *mockSlotRepository) FindStation(ctx context.Context, stationID string) (*model.Station, error) {
	if m.findStationFunc != nil {
		return m.findStationFunc(ctx, stationID)
	}
	return nil, bookingserrors.ErrStationNotFound
}

func (m *mockSlotRepository) Reserve(ctx context.Context, stationID, timeLabel string, reservation model.Reservation) error {
	if m.reserveFunc != nil {
		return m.reserveFunc(ctx, stationID, timeLabel, reservation)
	}
	return nil
}

func (m *mockSlotRepository) Release(ctx context.Context, stationID, timeLabel, bookingID string) (bool, error) {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, stationID, timeLabel, bookingID)
	}
	return true, nil
}

func (m *mockSlotRepository) ReleaseByOrdinal(ctx context.Context, stationID, timeLabel string, ordinal int) (*model.Reservation, error) {
	if m.releaseByOrdinalFunc != nil {
		return m.releaseByOrdinalFunc(ctx, stationID, timeLabel, ordinal)
	}
	return nil, bookingserrors.ErrReservationNotFound
}

func (m *mockSlotRepository) FindAllStations(ctx context.Context) ([]*model.Station, error) {
	return nil, nil
}

func (m *mockSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockLedgerRepository struct {
	findUserFunc            func(ctx context.Context, userID string) (*model.User, error)
	setCurrentBookingFunc   func(ctx context.Context, userID string, booking *model.CurrentBooking) error
	clearCurrentBookingFunc func(ctx context.Context, userID, bookingID string) error
	clearByBookingIDFunc    func(ctx context.Context, bookingID string) (bool, error)
}

func (m *mockLedgerRepository) FindUser(ctx context.Context, userID string) (*model.User, error) {
	if m.findUserFunc != nil {
		return m.findUserFunc(ctx, userID)
	}
	return nil, bookingserrors.ErrUserNotFound
}

func (m *mockLedgerRepository) SetCurrentBooking(ctx context.Context, userID string, booking *model.CurrentBooking) error {
	if m.setCurrentBookingFunc != nil {
		return m.setCurrentBookingFunc(ctx, userID, booking)
	}
	return nil
}

func (m *mockLedgerRepository) ClearCurrentBooking(ctx context.Context, userID, bookingID string) error {
	if m.clearCurrentBookingFunc != nil {
		return m.clearCurrentBookingFunc(ctx, userID, bookingID)
	}
	return nil
}

func (m *mockLedgerRepository) ClearByBookingID(ctx context.Context, bookingID string) (bool, error) {
	if m.clearByBookingIDFunc != nil {
		return m.clearByBookingIDFunc(ctx, bookingID)
	}
	return false, nil
}

func (m *mockLedgerRepository) FindAllWithBooking(ctx context.Context) ([]*model.User, error) {
	return nil, nil
}

type publishedEvent struct {
	eventType string
	bookingID string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishReserved(_ context.Context, booking *model.CurrentBooking, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{events.EventTypeReserved, booking.BookingID})
}

func (p *recordingPublisher) PublishReleased(_ context.Context, eventType string, event events.BookingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType, event.BookingID})
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) recorded() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	log := logger.New(logger.Config{
		Level:     logger.ERROR,
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	return &config.Config{
		Log:               log,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		RetryMaxAttempts:  1,
		RetryInitialDelay: time.Millisecond,
	}
}

func newTestService(t *testing.T, slots *mockSlotRepository, ledger *mockLedgerRepository, publisher events.Publisher) BookingService {
	t.Helper()
	cfg := newTestConfig(t)
	if publisher == nil {
		publisher = &recordingPublisher{}
	}
	return NewBookingService(slots, ledger, validator.NewBookingValidator(cfg.Log), publisher, cfg)
}

func testStation() *model.Station {
	return &model.Station{
		ID:      testStationID,
		Name:    "EV Plaza",
		Address: "12 MG Road, Bangalore",
		OwnerID: "owner-1",
		SlotData: []model.SlotBucket{
			{BucketID: "b-1", Time: "09:00-10:00", TotalSlots: 4},
		},
	}
}

func userActor() middleware.Actor {
	return middleware.Actor{ID: testUserID, Name: "Riya", Role: middleware.RoleUser}
}

func reserveRequest() *model.ReserveRequest {
	return &model.ReserveRequest{
		StationID: testStationID,
		Time:      "09:00-10:00",
		Ordinal:   2,
		UserID:    testUserID,
		UserName:  "Riya",
	}
}

func TestReserve_Success(t *testing.T) {
	var ledgerEntry *model.CurrentBooking
	var reserved *model.Reservation

	slots := &mockSlotRepository{
		findStationFunc: func(ctx context.Context, stationID string) (*model.Station, error) {
			return testStation(), nil
		},
		reserveFunc: func(ctx context.Context, stationID, timeLabel string, r model.Reservation) error {
			reserved = &r
			return nil
		},
	}
	ledger := &mockLedgerRepository{
		setCurrentBookingFunc: func(ctx context.Context, userID string, booking *model.CurrentBooking) error {
			ledgerEntry = booking
			return nil
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestService(t, slots, ledger, publisher)

	resp, err := svc.Reserve(context.Background(), userActor(), reserveRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.BookingID == "" {
		t.Fatal("expected a booking id")
	}
	if reserved == nil || ledgerEntry == nil {
		t.Fatal("both sides of the reservation must be written")
	}
	if reserved.BookingID != resp.BookingID || ledgerEntry.BookingID != resp.BookingID {
		t.Error("booking id must match on both sides")
	}
	if ledgerEntry.StationName != "EV Plaza" || ledgerEntry.StationAddress != "12 MG Road, Bangalore" {
		t.Errorf("ledger entry must snapshot station details: %+v", ledgerEntry)
	}
	if ledgerEntry.Ordinal != 2 || ledgerEntry.Time != "09:00-10:00" {
		t.Errorf("unexpected ledger slot fields: %+v", ledgerEntry)
	}

	evts := publisher.recorded()
	if len(evts) != 1 || evts[0].eventType != events.EventTypeReserved || evts[0].bookingID != resp.BookingID {
		t.Errorf("expected one reserved event, got %+v", evts)
	}
}

func TestReserve_SlotTakenConflictWithOccupancy(t *testing.T) {
	station := testStation()
	station.SlotData[0].BookedSlots = []model.Reservation{
		{UserID: otherUserID, Ordinal: 2, BookingID: "bk-1"},
	}

	var ledgerWrites int
	slots := &mockSlotRepository{
		findStationFunc: func(ctx context.Context, stationID string) (*model.Station, error) {
			return station, nil
		},
		reserveFunc: func(ctx context.Context, stationID, timeLabel string, r model.Reservation) error {
			return bookingserrors.ErrSlotTaken
		},
	}
	ledger := &mockLedgerRepository{
		setCurrentBookingFunc: func(ctx context.Context, userID string, booking *model.CurrentBooking) error {
			ledgerWrites++
			return nil
		},
	}
	svc := newTestService(t, slots, ledger, nil)

	_, err := svc.Reserve(context.Background(), userActor(), reserveRequest())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	appErr := apperrors.AsAppError(err)
	ordinals, ok := appErr.Details["booked_ordinals"].([]int)
	if !ok || len(ordinals) != 1 || ordinals[0] != 2 {
		t.Errorf("conflict should report current occupancy, got %+v", appErr.Details)
	}
}

func TestReserve_UserAlreadyHasBooking(t *testing.T) {
	slots := &mockSlotRepository{
		findStationFunc: func(ctx context.Context, stationID string) (*model.Station, error) {
			return testStation(), nil
		},
		reserveFunc: func(ctx context.Context, stationID, timeLabel string, r model.Reservation) error {
			t.Fatal("slot write must not happen when the ledger write fails")
			return nil
		},
	}
	ledger := &mockLedgerRepository{
		setCurrentBookingFunc: func(ctx context.Context, userID string, booking *model.CurrentBooking) error {
			return bookingserrors.ErrUserHasBooking
		},
	}
	svc := newTestService(t, slots, ledger, nil)

	_, err := svc.Reserve(context.Background(), userActor(), reserveRequest())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestReserve_OrdinalOutOfRange(t *testing.T) {
	slots := &mockSlotRepository{
		findStationFunc: func(ctx context.Context, stationID string) (*model.Station, error) {
			return testStation(), nil
		},
	}
	svc := newTestService(t, slots, &mockLedgerRepository{}, nil)

	req := reserveRequest()
	req.Ordinal = 5
	_, err := svc.Reserve(context.Background(), userActor(), req)
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReserve_UnknownBucket(t *testing.T) {
	slots := &mockSlotRepository{
		findStationFunc: func(ctx context.Context, stationID string) (*model.Station, error) {
			return testStation(), nil
		},
	}
	svc := newTestService(t, slots, &mockLedgerRepository{}, nil)

	req := reserveRequest()
	req.Time = "23:00-23:59"
	_, err := svc.Reserve(context.Background(), userActor(), req)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReserve_ActorMismatch(t *testing.T) {
	svc := newTestService(t, &mockSlotRepository{}, &mockLedgerRepository{}, nil)

	req := reserveRequest()
	actor := middleware.Actor{ID: otherUserID, Role: middleware.RoleUser}
	_, err := svc.Reserve(context.Background(), actor, req)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

// TestReserve_OneWinner races N users for the same ordinal against an
// in-memory model of the conditional updates. Exactly one reservation may
// succeed; everyone else gets a conflict.
func TestReserve_OneWinner(t *testing.T) {
	const contenders = 16

	var mu sync.Mutex
	slotHolder := ""
	ledgers := map[string]*model.CurrentBooking{}

	slots := &mockSlotRepository{
		findStationFunc: func(ctx context.Context, stationID string) (*model.Station, error) {
			return testStation(), nil
		},
		reserveFunc: func(ctx context.Context, stationID, timeLabel string, r model.Reservation) error {
			mu.Lock()
			defer mu.Unlock()
			if slotHolder != "" {
				// Roll the contender's ledger write back, as the aborted
				// transaction would.
				delete(ledgers, r.UserID)
				return bookingserrors.ErrSlotTaken
			}
			slotHolder = r.UserID
			return nil
		},
	}
	ledger := &mockLedgerRepository{
		setCurrentBookingFunc: func(ctx context.Context, userID string, booking *model.CurrentBooking) error {
			mu.Lock()
			defer mu.Unlock()
			if ledgers[userID] != nil {
				return bookingserrors.ErrUserHasBooking
			}
			ledgers[userID] = booking
			return nil
		},
	}
	svc := newTestService(t, slots, ledger, nil)

	userIDs := make([]string, contenders)
	for i := range userIDs {
		userIDs[i] = primitiveHex(i)
	}

	var wg sync.WaitGroup
	successes := make(chan string, contenders)
	conflicts := make(chan error, contenders)

	for _, uid := range userIDs {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			req := reserveRequest()
			req.UserID = uid
			actor := middleware.Actor{ID: uid, Role: middleware.RoleUser}
			resp, err := svc.Reserve(context.Background(), actor, req)
			if err != nil {
				conflicts <- err
				return
			}
			successes <- resp.BookingID
		}(uid)
	}
	wg.Wait()
	close(successes)
	close(conflicts)

	if n := len(successes); n != 1 {
		t.Fatalf("expected exactly one winner, got %d", n)
	}
	for err := range conflicts {
		if !apperrors.IsCode(err, apperrors.CodeConflict) {
			t.Errorf("loser should see a conflict, got %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ledgers) != 1 {
		t.Errorf("exactly one ledger entry should survive, got %d", len(ledgers))
	}
	if ledgers[slotHolder] == nil {
		t.Error("the surviving ledger entry must belong to the slot holder")
	}
}

// primitiveHex builds a distinct 24-char hex object id per index.
func primitiveHex(i int) string {
	const digits = "0123456789abcdef"
	id := []byte("64a7f0a1b4f3c26d58e00000")
	id[len(id)-1] = digits[i%16]
	id[len(id)-2] = digits[(i/16)%16]
	return string(id)
}

func releaseRequest() *model.ReleaseRequest {
	return &model.ReleaseRequest{
		UserID:    testUserID,
		BookingID: "3f2f9a46-5c0c-4a8e-9a5d-2f8a0c1d9b7e",
		StationID: testStationID,
		Time:      "09:00-10:00",
		Ordinal:   2,
	}
}

func TestRelease_Success(t *testing.T) {
	var pulled, cleared bool
	slots := &mockSlotRepository{
		releaseFunc: func(ctx context.Context, stationID, timeLabel, bookingID string) (bool, error) {
			pulled = true
			return true, nil
		},
	}
	ledger := &mockLedgerRepository{
		clearCurrentBookingFunc: func(ctx context.Context, userID, bookingID string) error {
			cleared = true
			return nil
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestService(t, slots, ledger, publisher)

	resp, err := svc.Release(context.Background(), userActor(), releaseRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success || !pulled || !cleared {
		t.Error("both sides must be released")
	}
	evts := publisher.recorded()
	if len(evts) != 1 || evts[0].eventType != events.EventTypeReleased {
		t.Errorf("expected one released event, got %+v", evts)
	}
}

func TestRelease_IdempotentReplay(t *testing.T) {
	slots := &mockSlotRepository{
		releaseFunc: func(ctx context.Context, stationID, timeLabel, bookingID string) (bool, error) {
			return false, nil
		},
	}
	ledger := &mockLedgerRepository{
		clearCurrentBookingFunc: func(ctx context.Context, userID, bookingID string) error {
			return bookingserrors.ErrNoActiveBooking
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestService(t, slots, ledger, publisher)

	resp, err := svc.Release(context.Background(), userActor(), releaseRequest())
	if err != nil {
		t.Fatalf("replayed release must succeed, got %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if evts := publisher.recorded(); len(evts) != 0 {
		t.Errorf("replay must not publish events, got %+v", evts)
	}
}

func TestRelease_StaleBookingID(t *testing.T) {
	slots := &mockSlotRepository{
		releaseFunc: func(ctx context.Context, stationID, timeLabel, bookingID string) (bool, error) {
			return false, nil
		},
	}
	ledger := &mockLedgerRepository{
		clearCurrentBookingFunc: func(ctx context.Context, userID, bookingID string) error {
			return bookingserrors.ErrBookingMismatch
		},
	}
	svc := newTestService(t, slots, ledger, nil)

	_, err := svc.Release(context.Background(), userActor(), releaseRequest())
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected conflict for stale booking id, got %v", err)
	}
}

func TestRelease_ActorMismatch(t *testing.T) {
	svc := newTestService(t, &mockSlotRepository{}, &mockLedgerRepository{}, nil)

	actor := middleware.Actor{ID: otherUserID, Role: middleware.RoleUser}
	_, err := svc.Release(context.Background(), actor, releaseRequest())
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestForceRelease_AdminOnly(t *testing.T) {
	svc := newTestService(t, &mockSlotRepository{}, &mockLedgerRepository{}, nil)

	req := &model.ForceReleaseRequest{StationID: testStationID, Time: "09:00-10:00", Ordinal: 2}
	_, err := svc.ForceRelease(context.Background(), userActor(), req)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}
}

func TestForceRelease_ClearsHolderLedger(t *testing.T) {
	var clearedBookingID string
	slots := &mockSlotRepository{
		releaseByOrdinalFunc: func(ctx context.Context, stationID, timeLabel string, ordinal int) (*model.Reservation, error) {
			return &model.Reservation{
				UserID:    testUserID,
				Ordinal:   ordinal,
				BookingID: "bk-victim",
			}, nil
		},
	}
	ledger := &mockLedgerRepository{
		clearByBookingIDFunc: func(ctx context.Context, bookingID string) (bool, error) {
			clearedBookingID = bookingID
			return true, nil
		},
	}
	publisher := &recordingPublisher{}
	svc := newTestService(t, slots, ledger, publisher)

	admin := middleware.Actor{ID: "admin-1", Role: middleware.RoleAdmin}
	req := &model.ForceReleaseRequest{StationID: testStationID, Time: "09:00-10:00", Ordinal: 2}

	resp, err := svc.ForceRelease(context.Background(), admin, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if clearedBookingID != "bk-victim" {
		t.Errorf("holder ledger must be cleared by booking id, got %q", clearedBookingID)
	}
	evts := publisher.recorded()
	if len(evts) != 1 || evts[0].eventType != events.EventTypeForceReleased {
		t.Errorf("expected one force-released event, got %+v", evts)
	}
}

func TestForceRelease_EmptySlot(t *testing.T) {
	slots := &mockSlotRepository{
		releaseByOrdinalFunc: func(ctx context.Context, stationID, timeLabel string, ordinal int) (*model.Reservation, error) {
			return nil, bookingserrors.ErrReservationNotFound
		},
	}
	svc := newTestService(t, slots, &mockLedgerRepository{}, nil)

	admin := middleware.Actor{ID: "admin-1", Role: middleware.RoleAdmin}
	req := &model.ForceReleaseRequest{StationID: testStationID, Time: "09:00-10:00", Ordinal: 2}

	_, err := svc.ForceRelease(context.Background(), admin, req)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found for empty slot, got %v", err)
	}
}

func TestGetCurrentBooking(t *testing.T) {
	booking := &model.CurrentBooking{
		BookingID:   "bk-1",
		StationID:   testStationID,
		StationName: "EV Plaza",
		Time:        "09:00-10:00",
		Ordinal:     2,
	}
	ledger := &mockLedgerRepository{
		findUserFunc: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, CurrentBooking: booking}, nil
		},
	}
	svc := newTestService(t, &mockSlotRepository{}, ledger, nil)

	got, err := svc.GetCurrentBooking(context.Background(), userActor(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BookingID != "bk-1" {
		t.Errorf("unexpected booking: %+v", got)
	}

	_, err = svc.GetCurrentBooking(context.Background(), userActor(), otherUserID)
	if !apperrors.IsCode(err, apperrors.CodeForbidden) {
		t.Fatalf("reading another user's ledger must be forbidden, got %v", err)
	}

	admin := middleware.Actor{ID: "admin-1", Role: middleware.RoleAdmin}
	if _, err := svc.GetCurrentBooking(context.Background(), admin, testUserID); err != nil {
		t.Fatalf("admin read should succeed: %v", err)
	}
}

func TestGetCurrentBooking_NoBooking(t *testing.T) {
	ledger := &mockLedgerRepository{
		findUserFunc: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID}, nil
		},
	}
	svc := newTestService(t, &mockSlotRepository{}, ledger, nil)

	got, err := svc.GetCurrentBooking(context.Background(), userActor(), testUserID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil booking, got %+v", got)
	}
}
