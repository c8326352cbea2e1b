package calls

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	// Callbacks for unknown provider SIDs must surface this unchanged;
	// no record is ever fabricated for them.
	ErrNotFound = errors.New("calls: record not found")

	// ErrDuplicateSID is returned when a provider SID assignment violates
	// the uniqueness constraint.
	ErrDuplicateSID = errors.New("calls: provider call sid already assigned")
)

// Repository is the persistence contract for call records and their audit trail.
//
// Concurrency contract: every mutation is a single atomic record update with
// field-scoped semantics. Status, raw status and duration are overwrite-style
// (backing-store commit order defines "last"); answered_at, ended_at and the
// provider SID are first-write-only. The audit trail is append-only, so
// concurrent appends commute.
type Repository interface {
	// Create persists a new record together with its initiation log entry.
	// Both land atomically: a created call always has its first audit row.
	Create(ctx context.Context, c Call, initLog LogEntry) (Call, error)

	// AssignProviderSID sets the provider call SID exactly once and advances
	// the status. A duplicate SID yields ErrDuplicateSID.
	AssignProviderSID(ctx context.Context, callID, sid string, status CallStatus) error

	GetByID(ctx context.Context, id string) (Call, error)
	GetByProviderSID(ctx context.Context, sid string) (Call, error)

	// ApplyStatus applies one status callback (see StatusUpdate semantics).
	ApplyStatus(ctx context.Context, callID string, u StatusUpdate) error

	// ApplyAMD applies one AMD callback, overwriting any prior AMD fields.
	ApplyAMD(ctx context.Context, callID string, u AMDUpdate) error

	// AppendLog appends one immutable audit entry. Never updates or deletes.
	AppendLog(ctx context.Context, e LogEntry) error
	ListLogs(ctx context.Context, callID string) ([]LogEntry, error)

	List(ctx context.Context, f ListFilter) ([]Call, error)
	Summarize(ctx context.Context, f ListFilter) (Summary, error)
}
