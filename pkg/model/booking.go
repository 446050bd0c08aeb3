package model

// ReserveRequest asks for one (station, time label, ordinal) unit. The
// user identity must match the authenticated actor.
type ReserveRequest struct {
	StationID string `json:"station_id" validate:"required,mongodb"`
	Time      string `json:"time" validate:"required,min=1,max=50"`
	Ordinal   int    `json:"ordinal" validate:"required,min=1"`
	UserID    string `json:"user_id" validate:"required,mongodb"`
	UserName  string `json:"user_name" validate:"required,min=1,max=100"`
}

type ReserveResponse struct {
	BookingID string `json:"booking_id"`
}

type ReleaseRequest struct {
	UserID    string `json:"user_id" validate:"required,mongodb"`
	BookingID string `json:"booking_id" validate:"required,uuid4"`
	StationID string `json:"station_id" validate:"required,mongodb"`
	Time      string `json:"time" validate:"required,min=1,max=50"`
	Ordinal   int    `json:"ordinal" validate:"required,min=1"`
}

type ReleaseResponse struct {
	Success bool `json:"success"`
}

// ForceReleaseRequest is the admin-side teardown of a reservation by its
// slot identifier; the holder's ledger entry is cleared as part of it.
type ForceReleaseRequest struct {
	StationID string `json:"station_id" validate:"required,mongodb"`
	Time      string `json:"time" validate:"required,min=1,max=50"`
	Ordinal   int    `json:"ordinal" validate:"required,min=1"`
}
