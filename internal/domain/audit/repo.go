package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows a trail query. Zero-valued fields are ignored.
type Filter struct {
	Action     string
	ActorID    string
	ActorRole  string
	PatientID  string
	TargetType string
	Severity   string
	Outcome    string
	From       *time.Time
	To         *time.Time
}

// Repository is append-only by construction: there is no update or delete.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}
