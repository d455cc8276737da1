package identity

import (
	"context"
	"time"
)

// Repository is the actor store. GetByID and GetByEmail return nil, nil
// when no row matches; callers translate that into a NotFound.
type Repository interface {
	Create(ctx context.Context, a *Actor) error
	GetByID(ctx context.Context, id string) (*Actor, error)
	GetByEmail(ctx context.Context, email string) (*Actor, error)
	// FindPatientByEmail matches email substrings among active patients
	// and returns the first match, or nil when there is none.
	FindPatientByEmail(ctx context.Context, fragment string) (*Actor, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	IsTrusted(ctx context.Context, patientID, doctorID string) (bool, error)
	AddTrusted(ctx context.Context, patientID, doctorID string, at time.Time) error
	RemoveTrusted(ctx context.Context, patientID, doctorID string) error
	ListTrusted(ctx context.Context, patientID string) ([]*TrustedDoctor, error)
}
