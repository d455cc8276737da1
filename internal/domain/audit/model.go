// Package audit is the append-only audit trail. Every security-relevant
// event in the platform lands here: verification submissions and reviews,
// consent decisions, record reads (including denials and emergency
// bypasses), and admin actions. Entries are never updated or deleted.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened. The set is closed; services never invent
// ad-hoc action strings.
const (
	ActionVerificationSubmitted           = "DOCTOR_VERIFICATION_SUBMITTED"
	ActionVerificationApproved            = "DOCTOR_VERIFICATION_APPROVED"
	ActionVerificationRejected            = "DOCTOR_VERIFICATION_REJECTED"
	ActionVerificationResubmissionRequest = "DOCTOR_VERIFICATION_RESUBMISSION_REQUESTED"
	ActionVerificationSuspended           = "DOCTOR_VERIFICATION_SUSPENDED"
	ActionAccessRequestCreated            = "PATIENT_ACCESS_REQUEST_CREATED"
	ActionAccessRequestApproved           = "PATIENT_ACCESS_REQUEST_APPROVED"
	ActionAccessRequestRejected           = "PATIENT_ACCESS_REQUEST_REJECTED"
	ActionAccessRequestExpired            = "PATIENT_ACCESS_REQUEST_EXPIRED"
	ActionPatientDataAccessed             = "PATIENT_DATA_ACCESSED"
	ActionPatientRevokedAccess            = "PATIENT_REVOKED_ACCESS"
	ActionEmergencyAccess                 = "EMERGENCY_ACCESS"
	ActionAdvisoryRequested               = "ADVISORY_REQUESTED"
	ActionAdminAction                     = "ADMIN_ACTION"
)

// Severity levels, ordered from routine to incident-worthy.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Outcome of the audited operation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeWarning = "warning"
)

// severityByAction assigns each action its default severity. Callers may
// override (a denied read is recorded as the same action with outcome
// failure and a raised severity).
var severityByAction = map[string]string{
	ActionVerificationSubmitted:           SeverityMedium,
	ActionVerificationApproved:            SeverityHigh,
	ActionVerificationRejected:            SeverityHigh,
	ActionVerificationResubmissionRequest: SeverityHigh,
	ActionVerificationSuspended:           SeverityHigh,
	ActionAccessRequestCreated:            SeverityMedium,
	ActionAccessRequestApproved:           SeverityMedium,
	ActionAccessRequestRejected:           SeverityLow,
	ActionAccessRequestExpired:            SeverityLow,
	ActionPatientDataAccessed:             SeverityMedium,
	ActionPatientRevokedAccess:            SeverityMedium,
	ActionEmergencyAccess:                 SeverityCritical,
	ActionAdvisoryRequested:               SeverityLow,
	ActionAdminAction:                     SeverityMedium,
}

// SeverityFor returns the default severity for an action.
func SeverityFor(action string) string {
	if s, ok := severityByAction[action]; ok {
		return s
	}
	return SeverityMedium
}

// ValidAction reports whether action belongs to the closed set.
func ValidAction(action string) bool {
	_, ok := severityByAction[action]
	return ok
}

// Detail is the typed payload attached to an entry. Each implementation
// names its kind; the kind is stored alongside the payload so entries can be
// decoded back into the right type.
type Detail interface {
	DetailKind() string
}

// ConsentDecisionDetail accompanies consent request lifecycle actions.
type ConsentDecisionDetail struct {
	RequestID    string `json:"request_id"`
	DoctorID     string `json:"doctor_id"`
	PatientID    string `json:"patient_id"`
	Decision     string `json:"decision,omitempty"`
	Reason       string `json:"reason,omitempty"`
	AutoApproved bool   `json:"auto_approved,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

func (ConsentDecisionDetail) DetailKind() string { return "consent_decision" }

// VerificationReviewDetail accompanies verification lifecycle actions.
type VerificationReviewDetail struct {
	DoctorID   string `json:"doctor_id"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status"`
	Notes      string `json:"notes,omitempty"`
	ReviewerID string `json:"reviewer_id,omitempty"`
}

func (VerificationReviewDetail) DetailKind() string { return "verification_review" }

// RecordAccessDetail accompanies record view/download actions, including
// denials and emergency bypass reads.
type RecordAccessDetail struct {
	RecordID   string `json:"record_id"`
	PatientID  string `json:"patient_id"`
	Category   string `json:"category,omitempty"`
	AccessType string `json:"access_type"` // view or download
	Granted    bool   `json:"granted"`
	DenyReason string `json:"deny_reason,omitempty"`
	Emergency  bool   `json:"emergency,omitempty"`
}

func (RecordAccessDetail) DetailKind() string { return "record_access" }

// AdvisoryUsageDetail accompanies advisory analysis calls.
type AdvisoryUsageDetail struct {
	UsedToday int  `json:"used_today"`
	Limit     int  `json:"limit"`
	OverLimit bool `json:"over_limit,omitempty"`
}

func (AdvisoryUsageDetail) DetailKind() string { return "advisory_usage" }

// AdminActionDetail accompanies generic admin operations.
type AdminActionDetail struct {
	Operation string `json:"operation"`
	TargetID  string `json:"target_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (AdminActionDetail) DetailKind() string { return "admin_action" }

// Target types name what an entry is about.
const (
	TargetDoctor        = "doctor"
	TargetPatient       = "patient"
	TargetAccessRequest = "access_request"
	TargetVerification  = "verification"
	TargetRecord        = "record"
	TargetAdmin         = "admin"
)

// Entry is a single audit trail record. ActorID is empty for emergency
// bypass reads, where possession of the token is the entire identity.
type Entry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Action      string    `db:"action" json:"action"`
	Severity    string    `db:"severity" json:"severity"`
	Outcome     string    `db:"outcome" json:"outcome"`
	ActorID     string    `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole   string    `db:"actor_role" json:"actor_role"`
	ActorName   string    `db:"actor_name" json:"actor_name,omitempty"`
	PatientID   string    `db:"patient_id" json:"patient_id,omitempty"`
	TargetType  string    `db:"target_type" json:"target_type,omitempty"`
	TargetID    string    `db:"target_id" json:"target_id,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent   string    `db:"user_agent" json:"user_agent,omitempty"`
	RequestID   string    `db:"request_id" json:"request_id,omitempty"`
	Detail      Detail    `db:"-" json:"detail,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// detailEnvelope is the stored JSONB shape: the payload plus its kind.
type detailEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// encodeDetail serializes a Detail for storage. A nil detail encodes as nil.
func encodeDetail(d Detail) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal detail payload: %w", err)
	}
	return json.Marshal(detailEnvelope{Kind: d.DetailKind(), Payload: payload})
}

// decodeDetail restores a stored detail into its concrete type. Unknown
// kinds fail; the set of kinds is closed.
func decodeDetail(data []byte) (Detail, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var env detailEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal detail envelope: %w", err)
	}

	var d Detail
	switch env.Kind {
	case "consent_decision":
		d = &ConsentDecisionDetail{}
	case "verification_review":
		d = &VerificationReviewDetail{}
	case "record_access":
		d = &RecordAccessDetail{}
	case "advisory_usage":
		d = &AdvisoryUsageDetail{}
	case "admin_action":
		d = &AdminActionDetail{}
	default:
		return nil, fmt.Errorf("unknown detail kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Payload, d); err != nil {
		return nil, fmt.Errorf("unmarshal %s detail: %w", env.Kind, err)
	}
	return d, nil
}
