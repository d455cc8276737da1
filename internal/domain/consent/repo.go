package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository stores consent requests. State transitions are conditional
// updates: each returns false when the row was not in the required state,
// so races between concurrent deciders resolve to exactly one winner.
type Repository interface {
	// Create inserts the request unless a pending request from the same
	// doctor to the same patient exists newer than the window. Returns
	// false without inserting when suppressed.
	Create(ctx context.Context, r *ConsentRequest, window time.Duration) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ConsentRequest, error)

	// Approve moves pending to approved. False when not pending.
	Approve(ctx context.Context, id uuid.UUID, approvedAt time.Time, expiresAt time.Time) (bool, error)
	// Reject moves pending to rejected. False when not pending.
	Reject(ctx context.Context, id uuid.UUID, rejectedAt time.Time, reason string) (bool, error)
	// Revoke moves an unexpired approved grant to expired. False when the
	// row is not approved or its expiry has already passed.
	Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) (bool, error)

	ListByDoctor(ctx context.Context, doctorID, status string, limit, offset int) ([]*ConsentRequest, int, error)
	ListByPatient(ctx context.Context, patientID, status string, limit, offset int) ([]*ConsentRequest, int, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]*ConsentRequest, int, error)
}
