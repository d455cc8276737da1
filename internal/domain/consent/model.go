// Package consent is the consent ledger: every doctor-to-patient access
// grant flows through a ConsentRequest row. Approval is time-bounded and
// expires lazily; readers compare against the clock instead of waiting for
// a sweeper.
package consent

import (
	"time"

	"github.com/google/uuid"
)

// Request states. A revoked grant lands in expired; there is no separate
// revoked state on reads.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusExpired  = "expired"
)

var validStatuses = map[string]bool{
	StatusPending:  true,
	StatusApproved: true,
	StatusRejected: true,
	StatusExpired:  true,
}

// ValidStatus reports whether s names a known request state.
func ValidStatus(s string) bool { return validStatuses[s] }

// Access levels.
const (
	AccessRead  = "read"
	AccessWrite = "write"
)

// Record categories a request may cover. CategoryAll grants every category.
const (
	CategoryAll          = "all"
	CategoryGeneral      = "general"
	CategoryLabResults   = "lab-results"
	CategoryPrescription = "prescription"
	CategoryImaging      = "imaging"
	CategoryEmergency    = "emergency"
	CategoryConsultation = "consultation"
)

var validCategories = map[string]bool{
	CategoryAll:          true,
	CategoryGeneral:      true,
	CategoryLabResults:   true,
	CategoryPrescription: true,
	CategoryImaging:      true,
	CategoryEmergency:    true,
	CategoryConsultation: true,
}

// ValidCategory reports whether c names a known record category.
func ValidCategory(c string) bool { return validCategories[c] }

// DuplicateWindow is how long a pending request suppresses a repeat from
// the same doctor to the same patient.
const DuplicateWindow = time.Hour

// ConsentRequest maps to the consent_request table.
type ConsentRequest struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	DoctorID        string     `db:"doctor_id" json:"doctor_id"`
	PatientID       string     `db:"patient_id" json:"patient_id"`
	Status          string     `db:"status" json:"status"`
	Reason          string     `db:"reason" json:"reason"`
	AccessLevel     string     `db:"access_level" json:"access_level"`
	Categories      []string   `db:"categories" json:"record_categories"`
	RequestedAt     time.Time  `db:"requested_at" json:"requested_at"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RevokedAt       *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ExpiresAt       *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	AutoApproved    bool       `db:"auto_approved" json:"auto_approved"`
	IPAddress       string     `db:"ip_address" json:"-"`
	UserAgent       string     `db:"user_agent" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus is the state readers must act on: an approved grant whose
// expiry has passed reads as expired even though no transition event fired.
func (r *ConsentRequest) EffectiveStatus(now time.Time) string {
	if r.Status == StatusApproved && r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return StatusExpired
	}
	return r.Status
}
