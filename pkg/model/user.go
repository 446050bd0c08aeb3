package model

import (
	"time"
)

// User carries at most one active booking. Registration and credentials are
// owned by the session layer; this service only reads and updates the
// current_booking subdocument.
type User struct {
	ID             string          `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name           string          `json:"name" bson:"name"`
	Email          string          `json:"email" bson:"email"`
	CurrentBooking *CurrentBooking `json:"current_booking" bson:"current_booking"`
	CreatedAt      time.Time       `json:"created_at" bson:"created_at"`
}

// CurrentBooking is the ledger entry: a denormalized snapshot of the station
// plus the slot identifier and the generated booking id.
type CurrentBooking struct {
	BookingID      string    `json:"booking_id" bson:"booking_id"`
	StationID      string    `json:"station_id" bson:"station_id"`
	StationName    string    `json:"station_name" bson:"station_name"`
	StationAddress string    `json:"station_address" bson:"station_address"`
	Time           string    `json:"time" bson:"time"`
	Ordinal        int       `json:"ordinal" bson:"ordinal"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}
