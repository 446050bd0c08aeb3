// Package reconciler is the backstop for the two-sided booking state. The
// transactional write path keeps the station reservation list and the user
// ledger in step; the periodic sweep repairs whatever a crash or manual data
// edit still managed to break, in both directions.
package reconciler

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	bookingserrors "helloev/internal/bookings/errors"
	"helloev/internal/bookings/repository"
	"helloev/pkg/config"
	"helloev/pkg/model"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_sweeps_total",
		Help: "Completed reconciliation sweeps.",
	})
	orphanedSlotsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_orphaned_slots_released_total",
		Help: "Station-side reservations released because no user ledger entry backed them.",
	})
	orphanedLedgersCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_orphaned_ledgers_cleared_total",
		Help: "User ledger entries cleared because no station-side reservation backed them.",
	})
)

// Report summarizes one sweep.
type Report struct {
	StationsScanned int
	UsersScanned    int
	SlotsReleased   int
	LedgersCleared  int
	Errors          int
}

type Reconciler struct {
	slots  repository.SlotRepository
	ledger repository.LedgerRepository
	cfg    *config.Config
}

func New(slots repository.SlotRepository, ledger repository.LedgerRepository, cfg *config.Config) *Reconciler {
	return &Reconciler{
		slots:  slots,
		ledger: ledger,
		cfg:    cfg,
	}
}

// Sweep repairs both directions and returns what it did. Individual repair
// failures are logged and counted, not fatal; the next sweep retries them.
func (r *Reconciler) Sweep(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := r.sweepStations(ctx, report); err != nil {
		return report, err
	}
	if err := r.sweepLedgers(ctx, report); err != nil {
		return report, err
	}

	sweepsTotal.Inc()
	r.cfg.Log.Info("Reconciliation sweep completed",
		"stations_scanned", report.StationsScanned,
		"users_scanned", report.UsersScanned,
		"slots_released", report.SlotsReleased,
		"ledgers_cleared", report.LedgersCleared,
		"errors", report.Errors,
	)
	return report, nil
}

// sweepStations releases station-side reservations whose holder no longer
// carries the matching ledger entry.
func (r *Reconciler) sweepStations(ctx context.Context, report *Report) error {
	stations, err := r.slots.FindAllStations(ctx)
	if err != nil {
		return err
	}

	for _, station := range stations {
		report.StationsScanned++
		for i := range station.SlotData {
			bucket := &station.SlotData[i]
			for _, reservation := range bucket.BookedSlots {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if r.ledgerBacks(ctx, reservation) {
					continue
				}

				released, err := r.slots.Release(ctx, station.ID, bucket.Time, reservation.BookingID)
				if err != nil {
					report.Errors++
					r.cfg.Log.Error("Failed to release orphaned reservation",
						"station_id", station.ID,
						"time", bucket.Time,
						"booking_id", reservation.BookingID,
						"error", err,
					)
					continue
				}
				if released {
					report.SlotsReleased++
					orphanedSlotsReleased.Inc()
					r.cfg.Log.Warn("Released orphaned station-side reservation",
						"station_id", station.ID,
						"time", bucket.Time,
						"ordinal", reservation.Ordinal,
						"booking_id", reservation.BookingID,
						"user_id", reservation.UserID,
					)
				}
			}
		}
	}
	return nil
}

// sweepLedgers clears ledger entries whose reservation is gone from the
// station side.
func (r *Reconciler) sweepLedgers(ctx context.Context, report *Report) error {
	users, err := r.ledger.FindAllWithBooking(ctx)
	if err != nil {
		return err
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.UsersScanned++
		booking := user.CurrentBooking
		if booking == nil {
			continue
		}
		if r.stationBacks(ctx, booking) {
			continue
		}

		if err := r.ledger.ClearCurrentBooking(ctx, user.ID, booking.BookingID); err != nil {
			// Cleared or replaced since the scan started; nothing to repair.
			if errors.Is(err, bookingserrors.ErrNoActiveBooking) || errors.Is(err, bookingserrors.ErrBookingMismatch) {
				continue
			}
			report.Errors++
			r.cfg.Log.Error("Failed to clear orphaned ledger entry",
				"user_id", user.ID,
				"booking_id", booking.BookingID,
				"error", err,
			)
			continue
		}

		report.LedgersCleared++
		orphanedLedgersCleared.Inc()
		r.cfg.Log.Warn("Cleared orphaned user ledger entry",
			"user_id", user.ID,
			"booking_id", booking.BookingID,
			"station_id", booking.StationID,
		)
	}
	return nil
}

// ledgerBacks reports whether the reservation's holder still carries the
// matching ledger entry. Lookup errors count as backed: the sweep only
// repairs states it can prove broken.
func (r *Reconciler) ledgerBacks(ctx context.Context, reservation model.Reservation) bool {
	user, err := r.ledger.FindUser(ctx, reservation.UserID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrUserNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			return false
		}
		r.cfg.Log.Error("Failed to look up reservation holder",
			"user_id", reservation.UserID,
			"booking_id", reservation.BookingID,
			"error", err,
		)
		return true
	}
	return user.CurrentBooking != nil && user.CurrentBooking.BookingID == reservation.BookingID
}

// stationBacks reports whether the ledger entry's reservation still exists
// on the station side.
func (r *Reconciler) stationBacks(ctx context.Context, booking *model.CurrentBooking) bool {
	station, err := r.slots.FindStation(ctx, booking.StationID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStationNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			return false
		}
		r.cfg.Log.Error("Failed to look up booked station",
			"station_id", booking.StationID,
			"booking_id", booking.BookingID,
			"error", err,
		)
		return true
	}

	bucket := station.FindBucket(booking.Time)
	if bucket == nil {
		return false
	}
	for _, reservation := range bucket.BookedSlots {
		if reservation.BookingID == booking.BookingID {
			return true
		}
	}
	return false
}
