package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"helloev/pkg/logger"
	"helloev/pkg/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type StationValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewStationValidator(log *logger.Logger) *StationValidator {
	return &StationValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *StationValidator) Validate(station *model.Station) error {
	if err := v.validate.Struct(station); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	return validateBucketTimeLabels(station.SlotData)
}

func (v *StationValidator) ValidateBucket(bucket *model.SlotBucket) error {
	if err := v.validate.Struct(bucket); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *StationValidator) ValidateBucketUpdate(update *model.BucketUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	if update.Time == "" && update.TotalSlots == nil {
		return ValidationErrors{
			ValidationError{
				Field:   "BucketUpdate",
				Message: "at least one of time or total_slots must be provided",
			},
		}
	}

	return nil
}

func validateBucketTimeLabels(buckets []model.SlotBucket) error {
	seen := make(map[string]struct{}, len(buckets))
	for _, bucket := range buckets {
		if _, dup := seen[bucket.Time]; dup {
			return ValidationErrors{
				ValidationError{
					Field:   "SlotData",
					Message: fmt.Sprintf("duplicate time label %q", bucket.Time),
				},
			}
		}
		seen[bucket.Time] = struct{}{}
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
