// Package verification is the doctor verification engine. A doctor submits
// identity documents, an admin reviews them, and only a verified doctor may
// initiate consent requests. One verification record exists per doctor;
// earlier submission rounds are archived, never discarded.
package verification

import (
	"time"

	"github.com/google/uuid"
)

// Verification states.
const (
	StatusNotSubmitted     = "not_submitted"
	StatusSubmitted        = "submitted"
	StatusUnderReview      = "under_review"
	StatusNeedResubmission = "need_resubmission"
	StatusVerified         = "verified"
	StatusRejected         = "rejected"
	StatusSuspended        = "suspended"
)

var validStatuses = map[string]bool{
	StatusNotSubmitted:     true,
	StatusSubmitted:        true,
	StatusUnderReview:      true,
	StatusNeedResubmission: true,
	StatusVerified:         true,
	StatusRejected:         true,
	StatusSuspended:        true,
}

// ValidStatus reports whether s names a known verification state.
func ValidStatus(s string) bool { return validStatuses[s] }

// Document types accepted as verification evidence.
const (
	DocMRN                = "MRN"
	DocGovernmentID       = "GOVERNMENT_ID"
	DocHospitalID         = "HOSPITAL_ID"
	DocMedicalCertificate = "MEDICAL_CERTIFICATE"
)

var validDocTypes = map[string]bool{
	DocMRN:                true,
	DocGovernmentID:       true,
	DocHospitalID:         true,
	DocMedicalCertificate: true,
}

// ValidDocumentType reports whether t is an accepted document type.
func ValidDocumentType(t string) bool { return validDocTypes[t] }

// Review actions.
const (
	ActionApprove             = "approve"
	ActionReject              = "reject"
	ActionRequestResubmission = "request_resubmission"
	ActionSuspend             = "suspend"
)

// reviewableFrom lists, per action, the states the action applies to.
// Reviewing a record in any other state is a conflict. Suspension reaches
// further than the other actions: a verified doctor can still be suspended.
var reviewableFrom = map[string]map[string]bool{
	ActionApprove: {
		StatusSubmitted:   true,
		StatusUnderReview: true,
	},
	ActionReject: {
		StatusSubmitted:   true,
		StatusUnderReview: true,
	},
	ActionRequestResubmission: {
		StatusSubmitted:   true,
		StatusUnderReview: true,
	},
	ActionSuspend: {
		StatusSubmitted:        true,
		StatusUnderReview:      true,
		StatusNeedResubmission: true,
		StatusVerified:         true,
	},
}

// ActionApplies reports whether a review action is valid from the given
// state.
func ActionApplies(action, status string) bool {
	from, ok := reviewableFrom[action]
	return ok && from[status]
}

// resubmittableFrom lists the states a doctor may resubmit from. Submitting
// while a review is in flight, or while suspended, is a conflict.
var resubmittableFrom = map[string]bool{
	StatusVerified:         true,
	StatusRejected:         true,
	StatusNeedResubmission: true,
}

// Document describes one uploaded piece of evidence. StorageRef points into
// the blob store; the bytes never live in this table.
type Document struct {
	Type       string    `json:"type"`
	FileName   string    `json:"file_name"`
	FileSize   int64     `json:"file_size"`
	StorageRef string    `json:"storage_ref"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SubmissionRound is an archived earlier submission.
type SubmissionRound struct {
	SubmittedAt time.Time  `json:"submitted_at"`
	Status      string     `json:"status"`
	Documents   []Document `json:"documents"`
}

// ReviewNotes are the admin's notes from a resubmission request.
type ReviewNotes struct {
	AdminID   string    `json:"admin_id"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// Verification maps to the doctor_verification table. Documents, History,
// and Notes are JSONB columns.
type Verification struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	DoctorID         string            `db:"doctor_id" json:"doctor_id"`
	Status           string            `db:"status" json:"status"`
	Documents        []Document        `db:"documents" json:"documents"`
	History          []SubmissionRound `db:"history" json:"submission_history"`
	Notes            *ReviewNotes      `db:"notes" json:"verification_notes,omitempty"`
	RejectionReason  *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	SuspensionReason *string           `db:"suspension_reason" json:"suspension_reason,omitempty"`
	VerifiedAt       *time.Time        `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy       *string           `db:"verified_by" json:"verified_by,omitempty"`
	RejectedAt       *time.Time        `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectedBy       *string           `db:"rejected_by" json:"rejected_by,omitempty"`
	LastReviewedAt   *time.Time        `db:"last_reviewed_at" json:"last_reviewed_at,omitempty"`
	LastReviewedBy   *string           `db:"last_reviewed_by" json:"last_reviewed_by,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}
