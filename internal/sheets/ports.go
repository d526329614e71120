package sheets

import (
	"context"

	"flotta/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordReader returns a snapshot of the usage sheet: header plus rows.
	RecordReader interface {
		FetchAllRecords(ctx context.Context) (core.RawTable, error)
	}

	// PlateLister returns every distinct non-blank plate, normalized and sorted.
	PlateLister interface {
		FetchDistinctPlates(ctx context.Context) ([]string, error)
	}

	// RecordWriter appends one confirmed record and returns a store-specific
	// reference to the new row.
	RecordWriter interface {
		AppendRecord(ctx context.Context, rec core.VehicleUsageRecord) (rowRef string, err error)
	}

	// Store is the full surface a usage store offers.
	Store interface {
		RecordReader
		PlateLister
		RecordWriter
	}
)
