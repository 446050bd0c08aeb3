package errors

import "errors"

var (
	ErrNotFound = errors.New("station not found")

	ErrInvalidID = errors.New("invalid station ID format")

	ErrBucketNotFound = errors.New("slot bucket not found")

	ErrDuplicateTimeLabel = errors.New("slot bucket with this time label already exists")
)
