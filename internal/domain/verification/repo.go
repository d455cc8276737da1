package verification

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores one verification record per doctor. GetByDoctorID and
// GetByID return nil, nil when no row matches.
type Repository interface {
	Create(ctx context.Context, v *Verification) error
	Update(ctx context.Context, v *Verification) error
	GetByID(ctx context.Context, id uuid.UUID) (*Verification, error)
	GetByDoctorID(ctx context.Context, doctorID string) (*Verification, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Verification, int, error)
}
