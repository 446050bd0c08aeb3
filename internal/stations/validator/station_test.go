package validator

import (
	"strings"
	"testing"

	"helloev/pkg/logger"
	"helloev/pkg/model"
)

func newTestValidator(t *testing.T) *StationValidator {
	t.Helper()
	log := logger.New(logger.Config{
		Level:     logger.INFO,
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	return NewStationValidator(log)
}

func validStation() *model.Station {
	return &model.Station{
		Name:    "EV Plaza",
		Address: "12 MG Road, Bangalore",
		OwnerID: "owner-1",
		SlotData: []model.SlotBucket{
			{BucketID: "0b51cb3e-8f2c-4a6e-9a0e-0a4421a28a37", Time: "09:00-10:00", TotalSlots: 4},
		},
	}
}

func TestValidate_ValidStation(t *testing.T) {
	v := newTestValidator(t)
	if err := v.Validate(validStation()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidStations(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name     string
		mutate   func(s *model.Station)
		wantWord string
	}{
		{"missing name", func(s *model.Station) { s.Name = "" }, "Name"},
		{"name too short", func(s *model.Station) { s.Name = "x" }, "Name"},
		{"missing address", func(s *model.Station) { s.Address = "" }, "Address"},
		{"address too short", func(s *model.Station) { s.Address = "abc" }, "Address"},
		{"missing owner", func(s *model.Station) { s.OwnerID = "" }, "OwnerID"},
		{"invalid object id", func(s *model.Station) { s.ID = "not-an-oid" }, "ID"},
		{"bucket missing time", func(s *model.Station) { s.SlotData[0].Time = "" }, "Time"},
		{"bucket zero capacity", func(s *model.Station) { s.SlotData[0].TotalSlots = 0 }, "TotalSlots"},
		{"bucket capacity too large", func(s *model.Station) { s.SlotData[0].TotalSlots = 501 }, "TotalSlots"},
		{"bucket bad uuid", func(s *model.Station) { s.SlotData[0].BucketID = "nope" }, "BucketID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validStation()
			tt.mutate(s)
			err := v.Validate(s)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantWord) {
				t.Errorf("expected error to mention %q, got %v", tt.wantWord, err)
			}
		})
	}
}

func TestValidate_DuplicateTimeLabels(t *testing.T) {
	v := newTestValidator(t)

	s := validStation()
	s.SlotData = append(s.SlotData, model.SlotBucket{
		Time:       "09:00-10:00",
		TotalSlots: 2,
	})

	err := v.Validate(s)
	if err == nil {
		t.Fatal("expected validation error for duplicate time labels")
	}
	if !strings.Contains(err.Error(), "duplicate time label") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestValidateBucketUpdate(t *testing.T) {
	v := newTestValidator(t)
	five := 5
	tooMany := 501

	tests := []struct {
		name    string
		update  model.BucketUpdate
		wantErr bool
	}{
		{"time only", model.BucketUpdate{Time: "10:00-11:00"}, false},
		{"slots only", model.BucketUpdate{TotalSlots: &five}, false},
		{"both fields", model.BucketUpdate{Time: "10:00-11:00", TotalSlots: &five}, false},
		{"empty update", model.BucketUpdate{}, true},
		{"slots out of range", model.BucketUpdate{TotalSlots: &tooMany}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateBucketUpdate(&tt.update)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
