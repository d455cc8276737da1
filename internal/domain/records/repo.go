package records

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Grant captures one consent decision to project onto the permission overlay.
// Categories may contain "all", which matches every record category.
type Grant struct {
	PatientID   string
	DoctorID    string
	Categories  []string
	AccessLevel string
	GrantedAt   time.Time
	ExpiresAt   time.Time
}

// Repository is the storage contract for records and their permission
// overlay. Permission rows are upserted and flipped, never deleted.
type Repository interface {
	Create(ctx context.Context, rec *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, rec *MedicalRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID, category string, limit, offset int) ([]*MedicalRecord, int, error)

	// ListAccessible returns the patient's records covered by a live
	// permission for the doctor at the given instant.
	ListAccessible(ctx context.Context, patientID, doctorID, category string, now time.Time, limit, offset int) ([]*MedicalRecord, int, error)

	GetPermission(ctx context.Context, recordID uuid.UUID, doctorID string) (*RecordPermission, error)
	ApplyGrant(ctx context.Context, g Grant) error
	RevokeGrant(ctx context.Context, patientID, doctorID string) error
}
