package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/domain/audit"
	"github.com/medvault/medvault/internal/domain/identity"
	"github.com/medvault/medvault/internal/platform/apperror"
	"github.com/medvault/medvault/internal/platform/auth"
)

const defaultRequestReason = "Patient data access required"
const defaultRejectReason = "Patient declined access"

// ActorDirectory is the slice of the identity store this ledger needs.
type ActorDirectory interface {
	GetActor(ctx context.Context, id string) (*identity.Actor, error)
	FindPatient(ctx context.Context, idOrEmail string) (*identity.Actor, error)
	IsVerifiedDoctor(ctx context.Context, id string) (bool, error)
	IsInTrustList(ctx context.Context, patientID, doctorID string) (bool, error)
	AddTrustedDoctor(ctx context.Context, patientID, doctorID string) error
}

// PermissionGranter projects consent decisions onto record permissions.
// The records overlay implements it.
type PermissionGranter interface {
	GrantAccess(ctx context.Context, patientID, doctorID string, categories []string, accessLevel string, expiresAt time.Time) error
	RevokeAccess(ctx context.Context, patientID, doctorID string) error
}

type Service struct {
	repo        Repository
	directory   ActorDirectory
	perms       PermissionGranter
	trail       *audit.Service
	defaultDays int
	now         func() time.Time
}

func NewService(repo Repository, directory ActorDirectory, perms PermissionGranter, trail *audit.Service, defaultDays int) *Service {
	if defaultDays <= 0 {
		defaultDays = 30
	}
	return &Service{
		repo:        repo,
		directory:   directory,
		perms:       perms,
		trail:       trail,
		defaultDays: defaultDays,
		now:         time.Now,
	}
}

// CreateInput is a doctor's access request. Patient may be an exact actor
// id or an email fragment.
type CreateInput struct {
	Patient     string   `json:"patient"`
	Reason      string   `json:"reason"`
	AccessLevel string   `json:"access_level"`
	Categories  []string `json:"record_categories"`
}

// Create runs the consent intake: verified-doctor gate, patient resolution,
// atomic duplicate suppression, and trust-list auto-approval. Auto-approved
// requests grant record permissions immediately.
func (s *Service) Create(ctx context.Context, doctorID string, in CreateInput, meta audit.RequestMeta) (*ConsentRequest, *identity.Actor, error) {
	verified, err := s.directory.IsVerifiedDoctor(ctx, doctorID)
	if err != nil {
		return nil, nil, err
	}
	if !verified {
		return nil, nil, apperror.New(apperror.Forbidden, "doctor verification required")
	}

	if in.Patient == "" {
		return nil, nil, apperror.New(apperror.Invalid, "patient identifier is required")
	}
	if in.Reason == "" {
		in.Reason = defaultRequestReason
	}
	if in.AccessLevel == "" {
		in.AccessLevel = AccessRead
	}
	if in.AccessLevel != AccessRead && in.AccessLevel != AccessWrite {
		return nil, nil, apperror.New(apperror.Invalid, "invalid access level %q", in.AccessLevel)
	}
	if len(in.Categories) == 0 {
		in.Categories = []string{CategoryAll}
	}
	for _, c := range in.Categories {
		if !ValidCategory(c) {
			return nil, nil, apperror.New(apperror.Invalid, "invalid record category %q", c)
		}
	}

	patient, err := s.directory.FindPatient(ctx, in.Patient)
	if err != nil {
		return nil, nil, err
	}

	trusted, err := s.directory.IsInTrustList(ctx, patient.ID, doctorID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	cr := &ConsentRequest{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		PatientID:   patient.ID,
		Status:      StatusPending,
		Reason:      in.Reason,
		AccessLevel: in.AccessLevel,
		Categories:  in.Categories,
		RequestedAt: now,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if trusted {
		expires := now.Add(time.Duration(s.defaultDays) * 24 * time.Hour)
		cr.Status = StatusApproved
		cr.ApprovedAt = &now
		cr.ExpiresAt = &expires
		cr.AutoApproved = true
	}

	created, err := s.repo.Create(ctx, cr, DuplicateWindow)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "create consent request")
	}
	if !created {
		return nil, nil, apperror.ConflictState(StatusPending, "access request already pending for this patient")
	}

	if cr.AutoApproved {
		if err := s.perms.GrantAccess(ctx, cr.PatientID, cr.DoctorID, cr.Categories, cr.AccessLevel, *cr.ExpiresAt); err != nil {
			return nil, nil, err
		}
	}

	if err := s.trail.Append(ctx, audit.Record{
		Action:      audit.ActionAccessRequestCreated,
		ActorID:     doctorID,
		ActorRole:   auth.RoleDoctor,
		PatientID:   patient.ID,
		TargetType:  audit.TargetAccessRequest,
		TargetID:    cr.ID.String(),
		Description: fmt.Sprintf("Doctor requested access to patient %s", patient.Email),
		Detail: &audit.ConsentDecisionDetail{
			RequestID:    cr.ID.String(),
			DoctorID:     doctorID,
			PatientID:    patient.ID,
			AutoApproved: cr.AutoApproved,
			ExpiresAt:    formatTimePtr(cr.ExpiresAt),
		},
		Meta: meta,
	}); err != nil {
		return nil, nil, err
	}
	return cr, patient, nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// loadOwned fetches a request and enforces patient ownership.
func (s *Service) loadOwned(ctx context.Context, patientID string, id uuid.UUID) (*ConsentRequest, error) {
	cr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err, "load consent request")
	}
	if cr == nil {
		return nil, apperror.New(apperror.NotFound, "access request not found")
	}
	if cr.PatientID != patientID {
		return nil, apperror.New(apperror.Forbidden, "access denied")
	}
	return cr, nil
}

// Approve grants the request. The pending precondition rides on a
// conditional update, so two concurrent decisions cannot both win.
func (s *Service) Approve(ctx context.Context, patientID string, id uuid.UUID, durationDays int, addToTrusted bool, meta audit.RequestMeta) (*ConsentRequest, error) {
	cr, err := s.loadOwned(ctx, patientID, id)
	if err != nil {
		return nil, err
	}

	if durationDays <= 0 {
		durationDays = s.defaultDays
	}
	now := s.now().UTC()
	expires := now.Add(time.Duration(durationDays) * 24 * time.Hour)

	ok, err := s.repo.Approve(ctx, id, now, expires)
	if err != nil {
		return nil, apperror.Wrap(err, "approve consent request")
	}
	if !ok {
		return nil, s.decidedConflict(ctx, id, now)
	}
	cr.Status = StatusApproved
	cr.ApprovedAt = &now
	cr.ExpiresAt = &expires
	cr.UpdatedAt = now

	if addToTrusted {
		if err := s.directory.AddTrustedDoctor(ctx, patientID, cr.DoctorID); err != nil {
			return nil, err
		}
	}
	if err := s.perms.GrantAccess(ctx, cr.PatientID, cr.DoctorID, cr.Categories, cr.AccessLevel, expires); err != nil {
		return nil, err
	}

	if err := s.trail.Append(ctx, audit.Record{
		Action:      audit.ActionAccessRequestApproved,
		ActorID:     patientID,
		ActorRole:   auth.RolePatient,
		PatientID:   patientID,
		TargetType:  audit.TargetAccessRequest,
		TargetID:    cr.ID.String(),
		Description: fmt.Sprintf("Patient approved access for doctor %s for %d days", cr.DoctorID, durationDays),
		Detail: &audit.ConsentDecisionDetail{
			RequestID: cr.ID.String(),
			DoctorID:  cr.DoctorID,
			PatientID: patientID,
			Decision:  StatusApproved,
			ExpiresAt: expires.Format(time.RFC3339),
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}
	return cr, nil
}

// Reject declines the request.
func (s *Service) Reject(ctx context.Context, patientID string, id uuid.UUID, reason string, meta audit.RequestMeta) (*ConsentRequest, error) {
	cr, err := s.loadOwned(ctx, patientID, id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = defaultRejectReason
	}

	now := s.now().UTC()
	ok, err := s.repo.Reject(ctx, id, now, reason)
	if err != nil {
		return nil, apperror.Wrap(err, "reject consent request")
	}
	if !ok {
		return nil, s.decidedConflict(ctx, id, now)
	}
	cr.Status = StatusRejected
	cr.RejectedAt = &now
	cr.RejectionReason = &reason
	cr.UpdatedAt = now

	if err := s.trail.Append(ctx, audit.Record{
		Action:      audit.ActionAccessRequestRejected,
		ActorID:     patientID,
		ActorRole:   auth.RolePatient,
		PatientID:   patientID,
		TargetType:  audit.TargetAccessRequest,
		TargetID:    cr.ID.String(),
		Description: fmt.Sprintf("Patient rejected access for doctor %s", cr.DoctorID),
		Detail: &audit.ConsentDecisionDetail{
			RequestID: cr.ID.String(),
			DoctorID:  cr.DoctorID,
			PatientID: patientID,
			Decision:  StatusRejected,
			Reason:    reason,
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}
	return cr, nil
}

// Revoke withdraws an active approved grant: the ledger row becomes
// expired and the doctor's record permissions are un-granted.
func (s *Service) Revoke(ctx context.Context, patientID string, id uuid.UUID, meta audit.RequestMeta) (*ConsentRequest, error) {
	cr, err := s.loadOwned(ctx, patientID, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ok, err := s.repo.Revoke(ctx, id, now)
	if err != nil {
		return nil, apperror.Wrap(err, "revoke consent request")
	}
	if !ok {
		state := cr.EffectiveStatus(now)
		return nil, apperror.ConflictState(state, "only an active approved grant can be revoked")
	}
	cr.Status = StatusExpired
	cr.RevokedAt = &now
	cr.UpdatedAt = now

	if err := s.perms.RevokeAccess(ctx, cr.PatientID, cr.DoctorID); err != nil {
		return nil, err
	}

	if err := s.trail.Append(ctx, audit.Record{
		Action:      audit.ActionPatientRevokedAccess,
		ActorID:     patientID,
		ActorRole:   auth.RolePatient,
		PatientID:   patientID,
		TargetType:  audit.TargetAccessRequest,
		TargetID:    cr.ID.String(),
		Description: fmt.Sprintf("Patient revoked access for doctor %s", cr.DoctorID),
		Detail: &audit.ConsentDecisionDetail{
			RequestID: cr.ID.String(),
			DoctorID:  cr.DoctorID,
			PatientID: patientID,
			Decision:  StatusExpired,
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}
	return cr, nil
}

func (s *Service) decidedConflict(ctx context.Context, id uuid.UUID, now time.Time) error {
	cr, err := s.repo.GetByID(ctx, id)
	if err != nil || cr == nil {
		return apperror.New(apperror.Conflict, "request already decided")
	}
	return apperror.ConflictState(cr.EffectiveStatus(now), "request already decided")
}

// Get returns one request, visible to its doctor, its patient, and admins.
func (s *Service) Get(ctx context.Context, actorID, role string, id uuid.UUID) (*ConsentRequest, error) {
	cr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err, "load consent request")
	}
	if cr == nil {
		return nil, apperror.New(apperror.NotFound, "access request not found")
	}
	switch role {
	case auth.RoleAdmin:
	case auth.RoleDoctor:
		if cr.DoctorID != actorID {
			return nil, apperror.New(apperror.Forbidden, "access denied")
		}
	case auth.RolePatient:
		if cr.PatientID != actorID {
			return nil, apperror.New(apperror.Forbidden, "access denied")
		}
	default:
		return nil, apperror.New(apperror.Forbidden, "access denied")
	}
	cr.Status = cr.EffectiveStatus(s.now().UTC())
	return cr, nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID, status string, limit, offset int) ([]*ConsentRequest, int, error) {
	return s.normalize(s.listChecked(ctx, status, func(st string) ([]*ConsentRequest, int, error) {
		return s.repo.ListByDoctor(ctx, doctorID, st, limit, offset)
	}))
}

func (s *Service) ListForPatient(ctx context.Context, patientID, status string, limit, offset int) ([]*ConsentRequest, int, error) {
	return s.normalize(s.listChecked(ctx, status, func(st string) ([]*ConsentRequest, int, error) {
		return s.repo.ListByPatient(ctx, patientID, st, limit, offset)
	}))
}

func (s *Service) ListAll(ctx context.Context, status string, limit, offset int) ([]*ConsentRequest, int, error) {
	return s.normalize(s.listChecked(ctx, status, func(st string) ([]*ConsentRequest, int, error) {
		return s.repo.ListAll(ctx, st, limit, offset)
	}))
}

func (s *Service) listChecked(_ context.Context, status string, fn func(string) ([]*ConsentRequest, int, error)) ([]*ConsentRequest, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, apperror.New(apperror.Invalid, "invalid status filter %q", status)
	}
	items, total, err := fn(status)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "list consent requests")
	}
	return items, total, nil
}

func (s *Service) normalize(items []*ConsentRequest, total int, err error) ([]*ConsentRequest, int, error) {
	if err != nil {
		return nil, 0, err
	}
	now := s.now().UTC()
	for _, cr := range items {
		cr.Status = cr.EffectiveStatus(now)
	}
	return items, total, nil
}
