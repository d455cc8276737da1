// Package records owns medical records and the permission overlay that
// projects consent decisions onto them. Every read of record content is
// audited, including denied attempts; an unauditable read does not happen.
package records

import (
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/auth"
)

// Record categories.
const (
	CategoryGeneral      = "general"
	CategoryLabResults   = "lab-results"
	CategoryPrescription = "prescription"
	CategoryImaging      = "imaging"
	CategoryEmergency    = "emergency"
	CategoryConsultation = "consultation"
)

var validCategories = map[string]bool{
	CategoryGeneral:      true,
	CategoryLabResults:   true,
	CategoryPrescription: true,
	CategoryImaging:      true,
	CategoryEmergency:    true,
	CategoryConsultation: true,
}

// ValidCategory reports whether c names a known record category.
func ValidCategory(c string) bool { return validCategories[c] }

// Access types recorded in the audit trail.
const (
	AccessView      = "view"
	AccessDownload  = "download"
	AccessEmergency = "emergency-access"
)

// FileMeta describes one attachment. BlobRef points into the blob store.
type FileMeta struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	BlobRef      string `json:"blob_ref"`
}

// MedicalRecord maps to the medical_record table. Files is a JSONB column.
type MedicalRecord struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          string     `db:"patient_id" json:"patient_id"`
	Title              string     `db:"title" json:"title"`
	Description        string     `db:"description" json:"description,omitempty"`
	Category           string     `db:"category" json:"category"`
	RecordDate         time.Time  `db:"record_date" json:"record_date"`
	DoctorID           *string    `db:"doctor_id" json:"doctor_id,omitempty"`
	IsEmergencyVisible bool       `db:"is_emergency_visible" json:"is_emergency_visible"`
	Files              []FileMeta `db:"files" json:"files"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// RecordPermission maps to the record_permission table. Rows are refreshed
// on approval and marked ungranted on revocation, never deleted, so the
// grant history stays reconstructable.
type RecordPermission struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RecordID    uuid.UUID  `db:"record_id" json:"record_id"`
	DoctorID    string     `db:"doctor_id" json:"doctor_id"`
	Granted     bool       `db:"granted" json:"granted"`
	GrantedAt   time.Time  `db:"granted_at" json:"granted_at"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	AccessLevel string     `db:"access_level" json:"access_level"`
}

// HasAccess is the whole access decision, with no side effects. A patient
// owns their records absolutely. A doctor needs a granted, unexpired
// permission. An emergency accessor sees only what the patient flagged
// emergency-visible. Everyone else, admins included, is denied here; the
// admin surface is audit logs, not record content.
func HasAccess(rec *MedicalRecord, perm *RecordPermission, role, actorID string, now time.Time) bool {
	switch role {
	case auth.RolePatient:
		return rec.PatientID == actorID
	case auth.RoleDoctor:
		if perm == nil || perm.RecordID != rec.ID || perm.DoctorID != actorID {
			return false
		}
		return perm.Granted && (perm.ExpiresAt == nil || perm.ExpiresAt.After(now))
	case auth.RoleEmergency:
		return rec.IsEmergencyVisible
	default:
		return false
	}
}
