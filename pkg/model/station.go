package model

import (
	"time"
)

// Station embeds its slot buckets and their reservations in one document,
// so slot allocation is a single conditional update against this record.
type Station struct {
	ID        string       `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name      string       `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Address   string       `json:"address" bson:"address" validate:"required,min=5,max=200"`
	OwnerID   string       `json:"owner_id" bson:"owner_id" validate:"required,min=1,max=100"`
	SlotData  []SlotBucket `json:"slot_data" bson:"slot_data" validate:"omitempty,dive"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// SlotBucket is a named time window with fixed capacity. The time label is
// an opaque string ("09:00-10:00"); it is never parsed.
type SlotBucket struct {
	BucketID    string        `json:"bucket_id" bson:"bucket_id" validate:"omitempty,uuid4"`
	Time        string        `json:"time" bson:"time" validate:"required,min=1,max=50"`
	TotalSlots  int           `json:"total_slots" bson:"total_slots" validate:"required,min=1,max=500"`
	BookedSlots []Reservation `json:"booked_slots" bson:"booked_slots"`
}

// Reservation occupies one ordinal in [1, TotalSlots] of its bucket. The
// booking id is mirrored into the holder's CurrentBooking so release and
// reconciliation can match the two sides.
type Reservation struct {
	UserID    string    `json:"user_id" bson:"user_id"`
	UserName  string    `json:"user_name" bson:"user_name"`
	Ordinal   int       `json:"ordinal" bson:"ordinal"`
	BookingID string    `json:"booking_id" bson:"booking_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type BucketUpdate struct {
	Time       string `json:"time,omitempty" validate:"omitempty,min=1,max=50"`
	TotalSlots *int   `json:"total_slots,omitempty" validate:"omitempty,min=1,max=500"`
}

// BucketAvailability is the per-bucket view served by station detail.
type BucketAvailability struct {
	BucketID       string `json:"bucket_id"`
	Time           string `json:"time"`
	TotalSlots     int    `json:"total_slots"`
	BookedOrdinals []int  `json:"booked_ordinals"`
	Available      int    `json:"available"`
}

type StationDetail struct {
	Station *Station             `json:"station"`
	Buckets []BucketAvailability `json:"buckets"`
}

// Occupied returns the booked ordinals of a bucket in insertion order.
func (b *SlotBucket) Occupied() []int {
	ordinals := make([]int, 0, len(b.BookedSlots))
	for _, r := range b.BookedSlots {
		ordinals = append(ordinals, r.Ordinal)
	}
	return ordinals
}

// FindBucket returns the bucket with the given time label, or nil.
func (s *Station) FindBucket(timeLabel string) *SlotBucket {
	for i := range s.SlotData {
		if s.SlotData[i].Time == timeLabel {
			return &s.SlotData[i]
		}
	}
	return nil
}

// FindBucketByID returns the bucket with the given bucket id, or nil.
func (s *Station) FindBucketByID(bucketID string) *SlotBucket {
	for i := range s.SlotData {
		if s.SlotData[i].BucketID == bucketID {
			return &s.SlotData[i]
		}
	}
	return nil
}
