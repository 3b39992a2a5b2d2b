package export

import "context"

// Operations recorded in the export queue and carried on export events.
const (
	OpAppend = "append"
	OpDelete = "delete"
)

// Backends selectable via EXPORT_BACKEND.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSheets = "sheets"
)

// Row is the flattened expense shape written to a destination.
// OccurredOn is an ISO date (YYYY-MM-DD).
type Row struct {
	ExpenseID   string
	Username    string
	OccurredOn  string
	Description string
	AmountCents int64
	Category    string
}

// Ports for outbound destinations.
type (
	// RowAppender writes a row and returns an opaque reference to where
	// it landed (a sheet range, a synthetic id).
	RowAppender interface {
		Append(ctx context.Context, row Row) (ref string, err error)
	}

	// RowDeleter removes a previously appended row. Deleting a row that
	// was never appended is not an error.
	RowDeleter interface {
		Delete(ctx context.Context, row Row) error
	}

	// Destination is the full surface an export backend provides.
	Destination interface {
		RowAppender
		RowDeleter
	}
)
