package errors

import "errors"

var (
	ErrStationNotFound = errors.New("station not found")

	ErrUserNotFound = errors.New("user not found")

	ErrInvalidID = errors.New("invalid ID format")

	ErrBucketNotFound = errors.New("slot bucket not found")

	ErrSlotTaken = errors.New("slot ordinal is already booked")

	ErrUserHasBooking = errors.New("user already holds an active booking")

	ErrNoActiveBooking = errors.New("user has no active booking")

	ErrBookingMismatch = errors.New("booking ID does not match the active booking")

	ErrReservationNotFound = errors.New("reservation not found on station")
)
