package identity

import (
	"context"
	"strings"
	"time"

	"github.com/medvault/medvault/internal/platform/apperror"
	"github.com/medvault/medvault/internal/platform/auth"
)

// VerificationChecker answers whether a doctor has passed verification.
// The verification engine implements it; the indirection keeps this
// package from importing it.
type VerificationChecker interface {
	IsVerified(ctx context.Context, doctorID string) (bool, error)
}

type Service struct {
	repo  Repository
	verif VerificationChecker
	now   func() time.Time
}

func NewService(repo Repository, verif VerificationChecker) *Service {
	return &Service{repo: repo, verif: verif, now: time.Now}
}

// RegisterInput carries the profile supplied at registration. Identity and
// role come from the authenticated token, never from the body.
type RegisterInput struct {
	Email            string            `json:"email"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Phone            *string           `json:"phone,omitempty"`
	DoctorProfile    *DoctorProfile    `json:"doctor_profile,omitempty"`
	EmergencyProfile *EmergencyProfile `json:"emergency_profile,omitempty"`
}

// Register creates the actor row for an authenticated subject. The role is
// set exactly once here; nothing in the platform mutates it afterwards.
func (s *Service) Register(ctx context.Context, id, role string, in RegisterInput) (*Actor, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" {
		return nil, apperror.New(apperror.Invalid, "email is required")
	}
	switch role {
	case auth.RolePatient, auth.RoleDoctor, auth.RoleEmergency, auth.RoleAdmin:
	default:
		return nil, apperror.New(apperror.Invalid, "unknown role %q", role)
	}
	if role == auth.RoleDoctor && (in.DoctorProfile == nil || in.DoctorProfile.LicenseNumber == "") {
		return nil, apperror.New(apperror.Invalid, "doctor registration requires a license number")
	}
	if role == auth.RoleEmergency && (in.EmergencyProfile == nil || in.EmergencyProfile.BadgeNumber == "") {
		return nil, apperror.New(apperror.Invalid, "emergency registration requires a badge number")
	}

	if existing, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, apperror.Wrap(err, "look up actor")
	} else if existing != nil {
		return nil, apperror.New(apperror.Conflict, "actor already registered")
	}
	if existing, err := s.repo.GetByEmail(ctx, in.Email); err != nil {
		return nil, apperror.Wrap(err, "look up actor by email")
	} else if existing != nil {
		return nil, apperror.New(apperror.Conflict, "email already in use")
	}

	a := &Actor{
		ID:        id,
		Email:     in.Email,
		Role:      role,
		Active:    true,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		CreatedAt: s.now().UTC(),
	}
	switch role {
	case auth.RoleDoctor:
		a.DoctorProfile = in.DoctorProfile
	case auth.RoleEmergency:
		a.EmergencyProfile = in.EmergencyProfile
	}
	a.UpdatedAt = a.CreatedAt

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, apperror.Wrap(err, "create actor")
	}
	return a, nil
}

func (s *Service) GetActor(ctx context.Context, id string) (*Actor, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err, "get actor")
	}
	if a == nil {
		return nil, apperror.New(apperror.NotFound, "actor not found")
	}
	return a, nil
}

// FindPatient resolves a patient by exact id first, then by email
// substring among active patients.
func (s *Service) FindPatient(ctx context.Context, idOrEmail string) (*Actor, error) {
	idOrEmail = strings.TrimSpace(idOrEmail)
	if idOrEmail == "" {
		return nil, apperror.New(apperror.Invalid, "patient identifier is required")
	}

	a, err := s.repo.GetByID(ctx, idOrEmail)
	if err != nil {
		return nil, apperror.Wrap(err, "find patient")
	}
	if a != nil && a.Role == auth.RolePatient && a.Active {
		return a, nil
	}

	a, err = s.repo.FindPatientByEmail(ctx, idOrEmail)
	if err != nil {
		return nil, apperror.Wrap(err, "find patient by email")
	}
	if a == nil {
		return nil, apperror.New(apperror.NotFound, "patient not found")
	}
	return a, nil
}

// RecordLogin stamps the actor's last login. Best effort; callers ignore
// its error on read paths.
func (s *Service) RecordLogin(ctx context.Context, id string) error {
	return s.repo.TouchLastLogin(ctx, id, s.now().UTC())
}

func (s *Service) IsInTrustList(ctx context.Context, patientID, doctorID string) (bool, error) {
	trusted, err := s.repo.IsTrusted(ctx, patientID, doctorID)
	if err != nil {
		return false, apperror.Wrap(err, "check trust list")
	}
	return trusted, nil
}

// AddTrustedDoctor pre-authorizes a doctor for the patient. Adding an
// already-trusted doctor is a no-op.
func (s *Service) AddTrustedDoctor(ctx context.Context, patientID, doctorID string) error {
	doctor, err := s.repo.GetByID(ctx, doctorID)
	if err != nil {
		return apperror.Wrap(err, "look up doctor")
	}
	if doctor == nil || doctor.Role != auth.RoleDoctor {
		return apperror.New(apperror.NotFound, "doctor not found")
	}
	if !doctor.Active {
		return apperror.New(apperror.Invalid, "doctor account is inactive")
	}
	if err := s.repo.AddTrusted(ctx, patientID, doctorID, s.now().UTC()); err != nil {
		return apperror.Wrap(err, "add trusted doctor")
	}
	return nil
}

func (s *Service) RemoveTrustedDoctor(ctx context.Context, patientID, doctorID string) error {
	trusted, err := s.repo.IsTrusted(ctx, patientID, doctorID)
	if err != nil {
		return apperror.Wrap(err, "check trust list")
	}
	if !trusted {
		return apperror.New(apperror.NotFound, "doctor is not in the trust list")
	}
	if err := s.repo.RemoveTrusted(ctx, patientID, doctorID); err != nil {
		return apperror.Wrap(err, "remove trusted doctor")
	}
	return nil
}

// ListTrustedDoctors returns the patient's trust list joined with each
// doctor's public profile. Doctors whose accounts have since been removed
// are skipped.
func (s *Service) ListTrustedDoctors(ctx context.Context, patientID string) ([]*TrustedDoctorView, error) {
	rows, err := s.repo.ListTrusted(ctx, patientID)
	if err != nil {
		return nil, apperror.Wrap(err, "list trusted doctors")
	}
	views := make([]*TrustedDoctorView, 0, len(rows))
	for _, t := range rows {
		doctor, err := s.repo.GetByID(ctx, t.DoctorID)
		if err != nil {
			return nil, apperror.Wrap(err, "look up trusted doctor")
		}
		if doctor == nil {
			continue
		}
		v := &TrustedDoctorView{
			DoctorID: doctor.ID,
			Name:     doctor.DisplayName(),
			Email:    doctor.Email,
			AddedAt:  t.AddedAt,
		}
		if doctor.DoctorProfile != nil {
			v.Specialization = doctor.DoctorProfile.Specialization
			v.Hospital = doctor.DoctorProfile.Hospital
		}
		views = append(views, v)
	}
	return views, nil
}

// IsVerifiedDoctor reports whether the actor is an active doctor whose
// verification has been approved. Verification state is owned by the
// verification engine; this is the only way other packages should ask.
func (s *Service) IsVerifiedDoctor(ctx context.Context, id string) (bool, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, apperror.Wrap(err, "look up doctor")
	}
	if a == nil || a.Role != auth.RoleDoctor || !a.Active {
		return false, nil
	}
	verified, err := s.verif.IsVerified(ctx, id)
	if err != nil {
		return false, apperror.Wrap(err, "check verification state")
	}
	return verified, nil
}
