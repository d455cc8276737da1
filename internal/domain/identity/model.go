// Package identity is the actor store: patients, doctors, emergency
// responders, and admins, plus each patient's trusted-doctor list.
// Authentication happens upstream; this package owns the profile data
// keyed by the token subject.
package identity

import (
	"time"
)

// Actor maps to the actor table. The role payload lives in a JSONB column
// matching the role; a patient has neither profile attached.
type Actor struct {
	ID               string            `db:"id" json:"id"`
	Email            string            `db:"email" json:"email"`
	Role             string            `db:"role" json:"role"`
	Active           bool              `db:"active" json:"active"`
	FirstName        string            `db:"first_name" json:"first_name"`
	LastName         string            `db:"last_name" json:"last_name"`
	Phone            *string           `db:"phone" json:"phone,omitempty"`
	DoctorProfile    *DoctorProfile    `db:"doctor_profile" json:"doctor_profile,omitempty"`
	EmergencyProfile *EmergencyProfile `db:"emergency_profile" json:"emergency_profile,omitempty"`
	LastLoginAt      *time.Time        `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// DisplayName is the human-readable name used in audit entries.
func (a *Actor) DisplayName() string {
	switch {
	case a.FirstName != "" && a.LastName != "":
		return a.FirstName + " " + a.LastName
	case a.FirstName != "":
		return a.FirstName
	case a.LastName != "":
		return a.LastName
	}
	return a.Email
}

// DoctorProfile is the doctor role payload.
type DoctorProfile struct {
	LicenseNumber  string `json:"license_number"`
	Specialization string `json:"specialization,omitempty"`
	Hospital       string `json:"hospital,omitempty"`
	Bio            string `json:"bio,omitempty"`
}

// EmergencyProfile is the emergency responder role payload.
type EmergencyProfile struct {
	BadgeNumber    string `json:"badge_number"`
	Department     string `json:"department,omitempty"`
	Station        string `json:"station,omitempty"`
	Certifications string `json:"certifications,omitempty"`
}

// TrustedDoctor maps to the trust_list table. A row means the patient has
// pre-authorized the doctor: future access requests from them are approved
// without asking.
type TrustedDoctor struct {
	PatientID string    `db:"patient_id" json:"patient_id"`
	DoctorID  string    `db:"doctor_id" json:"doctor_id"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
}

// TrustedDoctorView joins the trust row with the doctor's public profile
// for the patient-facing list.
type TrustedDoctorView struct {
	DoctorID       string    `json:"doctor_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization string    `json:"specialization,omitempty"`
	Hospital       string    `json:"hospital,omitempty"`
	AddedAt        time.Time `json:"added_at"`
}
