package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestRecordValidate(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	good := VehicleUsageRecord{Date: day, Driver: "MARIO", Plate: "AB123CD"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		rec  VehicleUsageRecord
		want error
	}{
		{"zero date", VehicleUsageRecord{Driver: "A", Plate: "B"}, ErrEmptyDate},
		{"blank driver", VehicleUsageRecord{Date: day, Driver: "  ", Plate: "B"}, ErrEmptyDriver},
		{"blank plate", VehicleUsageRecord{Date: day, Driver: "A"}, ErrEmptyPlate},
		{"negative km", VehicleUsageRecord{Date: day, Driver: "A", Plate: "B", Odometer: ptr(-1.0)}, ErrInvalidKm},
		{"NaN km", VehicleUsageRecord{Date: day, Driver: "A", Plate: "B", Odometer: ptr(math.NaN())}, ErrInvalidKm},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.rec.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := NormalizeDriver("  mario rossi "); got != "MARIO ROSSI" {
		t.Fatalf("NormalizeDriver: %q", got)
	}
	if got := NormalizePlate(" ab 123\tcd "); got != "AB123CD" {
		t.Fatalf("NormalizePlate: %q", got)
	}
	if got := NormalizePlate("   "); got != "" {
		t.Fatalf("NormalizePlate blank: %q", got)
	}
}

func TestMissingColumns(t *testing.T) {
	tbl := RawTable{Columns: []string{" data ", "Driver", "KM"}}
	missing := tbl.MissingColumns()
	if len(missing) != 1 || missing[0] != ColumnPlate {
		t.Fatalf("unexpected missing: %v", missing)
	}
	if !tbl.HasColumn("km") {
		t.Fatalf("expected case-insensitive match")
	}
}

func TestErrorKinds(t *testing.T) {
	var err error = &ValidationError{State: "CollectDriver", Input: "", Reason: "empty"}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ValidationError should match ErrValidation")
	}
	err = &MissingColumnsError{Missing: []string{"TARGA"}}
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("MissingColumnsError should match ErrMissingColumns")
	}
	cause := errors.New("dial tcp: timeout")
	err = StoreUnavailable("fetch", cause)
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("StoreUnavailable should wrap both kind and cause: %v", err)
	}
}
