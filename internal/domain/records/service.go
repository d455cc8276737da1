package records

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/domain/audit"
	"github.com/medvault/medvault/internal/platform/apperror"
	"github.com/medvault/medvault/internal/platform/auth"
	"github.com/medvault/medvault/internal/platform/blobstore"
)

const blobCategoryRecord = "record"

type Service struct {
	repo  Repository
	blobs blobstore.BlobStore
	trail *audit.Service
	now   func() time.Time
}

func NewService(repo Repository, blobs blobstore.BlobStore, trail *audit.Service) *Service {
	return &Service{repo: repo, blobs: blobs, trail: trail, now: time.Now}
}

// GrantAccess projects an approved consent onto the permission overlay:
// every current record of the patient in the granted categories gets a
// refreshed permission row for the doctor.
func (s *Service) GrantAccess(ctx context.Context, patientID, doctorID string, categories []string, accessLevel string, expiresAt time.Time) error {
	err := s.repo.ApplyGrant(ctx, Grant{
		PatientID:   patientID,
		DoctorID:    doctorID,
		Categories:  categories,
		AccessLevel: accessLevel,
		GrantedAt:   s.now().UTC(),
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return apperror.Wrap(err, "apply record grant")
	}
	return nil
}

// RevokeAccess marks the doctor's permissions on the patient's records
// ungranted. The rows stay behind so the grant history remains auditable.
func (s *Service) RevokeAccess(ctx context.Context, patientID, doctorID string) error {
	if err := s.repo.RevokeGrant(ctx, patientID, doctorID); err != nil {
		return apperror.Wrap(err, "revoke record grant")
	}
	return nil
}

// FileUpload is one attachment in a record creation.
type FileUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

type CreateInput struct {
	Title              string
	Description        string
	Category           string
	RecordDate         time.Time
	IsEmergencyVisible bool
	Uploads            []FileUpload
}

func (s *Service) Create(ctx context.Context, patientID string, in CreateInput) (*MedicalRecord, error) {
	if in.Title == "" {
		return nil, apperror.New(apperror.Invalid, "title is required")
	}
	if in.Category == "" {
		in.Category = CategoryGeneral
	}
	if !ValidCategory(in.Category) {
		return nil, apperror.New(apperror.Invalid, "invalid category %q", in.Category)
	}

	now := s.now().UTC()
	if in.RecordDate.IsZero() {
		in.RecordDate = now
	}

	files := make([]FileMeta, 0, len(in.Uploads))
	for _, u := range in.Uploads {
		stored, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
			FileName:    u.FileName,
			ContentType: u.ContentType,
			OwnerID:     patientID,
			Category:    blobCategoryRecord,
			CreatedBy:   patientID,
		}, bytes.NewReader(u.Data))
		if err != nil {
			return nil, uploadError(u.FileName, err)
		}
		files = append(files, FileMeta{
			Name:         fmt.Sprintf("%d-%s", now.UnixMilli(), u.FileName),
			OriginalName: u.FileName,
			ContentType:  stored.ContentType,
			Size:         stored.Size,
			BlobRef:      stored.ID,
		})
	}

	rec := &MedicalRecord{
		ID:                 uuid.New(),
		PatientID:          patientID,
		Title:              in.Title,
		Description:        in.Description,
		Category:           in.Category,
		RecordDate:         in.RecordDate,
		IsEmergencyVisible: in.IsEmergencyVisible,
		Files:              files,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, apperror.Wrap(err, "create record")
	}
	return rec, nil
}

func uploadError(fileName string, err error) error {
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apperror.New(apperror.Invalid, "%s exceeds the 10MB limit", fileName)
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apperror.New(apperror.Invalid, "%s has an unsupported format, use JPG, PNG, or PDF", fileName)
	case errors.Is(err, blobstore.ErrMissingFileName):
		return apperror.New(apperror.Invalid, "file name is required")
	default:
		return apperror.Wrap(err, "store attachment")
	}
}

type UpdateInput struct {
	Title       *string
	Description *string
	Category    *string
	RecordDate  *time.Time
}

// Update edits record metadata. Only the owning patient may edit.
func (s *Service) Update(ctx context.Context, patientID string, id uuid.UUID, in UpdateInput) (*MedicalRecord, error) {
	rec, err := s.loadOwned(ctx, patientID, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if *in.Title == "" {
			return nil, apperror.New(apperror.Invalid, "title is required")
		}
		rec.Title = *in.Title
	}
	if in.Description != nil {
		rec.Description = *in.Description
	}
	if in.Category != nil {
		if !ValidCategory(*in.Category) {
			return nil, apperror.New(apperror.Invalid, "invalid category %q", *in.Category)
		}
		rec.Category = *in.Category
	}
	if in.RecordDate != nil {
		rec.RecordDate = *in.RecordDate
	}
	rec.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, apperror.Wrap(err, "update record")
	}
	return rec, nil
}

// SetEmergencyVisibility flips whether the record is readable on the
// emergency bypass path.
func (s *Service) SetEmergencyVisibility(ctx context.Context, patientID string, id uuid.UUID, visible bool) (*MedicalRecord, error) {
	rec, err := s.loadOwned(ctx, patientID, id)
	if err != nil {
		return nil, err
	}
	rec.IsEmergencyVisible = visible
	rec.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, apperror.Wrap(err, "update record")
	}
	return rec, nil
}

// Delete removes the record and its attachments. Blob deletion is best
// effort; an orphaned blob is unreachable without the record anyway.
func (s *Service) Delete(ctx context.Context, patientID string, id uuid.UUID) error {
	rec, err := s.loadOwned(ctx, patientID, id)
	if err != nil {
		return err
	}
	for _, f := range rec.Files {
		_ = s.blobs.Delete(ctx, f.BlobRef)
	}
	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		return apperror.Wrap(err, "delete record")
	}
	return nil
}

func (s *Service) loadOwned(ctx context.Context, patientID string, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err, "load record")
	}
	if rec == nil {
		return nil, apperror.New(apperror.NotFound, "record not found")
	}
	if rec.PatientID != patientID {
		return nil, apperror.New(apperror.Forbidden, "access denied")
	}
	return rec, nil
}

func (s *Service) ListOwn(ctx context.Context, patientID, category string, limit, offset int) ([]*MedicalRecord, int, error) {
	if category != "" && !ValidCategory(category) {
		return nil, 0, apperror.New(apperror.Invalid, "invalid category %q", category)
	}
	items, total, err := s.repo.ListByPatient(ctx, patientID, category, limit, offset)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "list records")
	}
	return items, total, nil
}

// ListForDoctor returns the slice of a patient's records the doctor holds a
// live permission on. Records outside the grant simply do not appear.
func (s *Service) ListForDoctor(ctx context.Context, doctorID, patientID, category string, limit, offset int) ([]*MedicalRecord, int, error) {
	if category != "" && !ValidCategory(category) {
		return nil, 0, apperror.New(apperror.Invalid, "invalid category %q", category)
	}
	items, total, err := s.repo.ListAccessible(ctx, patientID, doctorID, category, s.now().UTC(), limit, offset)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "list accessible records")
	}
	return items, total, nil
}

// Accessor identifies who is reading. Emergency accessors carry no actor ID;
// possession of the token is the entire identity.
type Accessor struct {
	ID        string
	Role      string
	Name      string
	Emergency bool
}

// View returns the record after the access check. The attempt is audited
// whether it succeeds or not, and an unauditable attempt fails closed.
func (s *Service) View(ctx context.Context, acc Accessor, id uuid.UUID, meta audit.RequestMeta) (*MedicalRecord, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, acc, rec, AccessView, meta); err != nil {
		return nil, err
	}
	return rec, nil
}

// Download streams one attachment of the record, under the same access
// check and audit obligations as View.
func (s *Service) Download(ctx context.Context, acc Accessor, id uuid.UUID, blobRef string, meta audit.RequestMeta) (*blobstore.BlobMetadata, []byte, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(ctx, acc, rec, AccessDownload, meta); err != nil {
		return nil, nil, err
	}

	var file *FileMeta
	for i := range rec.Files {
		if rec.Files[i].BlobRef == blobRef {
			file = &rec.Files[i]
			break
		}
	}
	if file == nil {
		return nil, nil, apperror.New(apperror.NotFound, "file not found")
	}

	rc, blobMeta, err := s.blobs.Download(ctx, blobRef)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "open attachment")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "read attachment")
	}
	return blobMeta, data, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err, "load record")
	}
	if rec == nil {
		return nil, apperror.New(apperror.NotFound, "record not found")
	}
	return rec, nil
}

// authorize runs the access decision and writes the audit entry before any
// content leaves. A failed append aborts the read.
func (s *Service) authorize(ctx context.Context, acc Accessor, rec *MedicalRecord, accessType string, meta audit.RequestMeta) error {
	now := s.now().UTC()
	role := acc.Role
	if acc.Emergency {
		role = auth.RoleEmergency
	}

	var perm *RecordPermission
	if role == auth.RoleDoctor {
		p, err := s.repo.GetPermission(ctx, rec.ID, acc.ID)
		if err != nil {
			return apperror.Wrap(err, "load record permission")
		}
		perm = p
	}

	allowed := HasAccess(rec, perm, role, acc.ID, now)
	// A responder session alone carries no record access; the emergency
	// scope is only entered through a verified emergency token.
	if role == auth.RoleEmergency && !acc.Emergency {
		allowed = false
	}

	action := audit.ActionPatientDataAccessed
	if acc.Emergency {
		action = audit.ActionEmergencyAccess
		accessType = AccessEmergency
	}
	severity := ""
	denyReason := ""
	if !allowed {
		switch {
		case role == auth.RoleDoctor:
			denyReason = "no active permission"
		case acc.Emergency:
			denyReason = "record is not emergency visible"
		case role == auth.RoleEmergency:
			denyReason = "emergency reads require an emergency token"
		default:
			denyReason = "role has no record access"
		}
		if !acc.Emergency {
			severity = audit.SeverityHigh
		}
	}

	outcome := audit.OutcomeSuccess
	description := fmt.Sprintf("Record %s by %s", accessType, role)
	if !allowed {
		outcome = audit.OutcomeFailure
		description = fmt.Sprintf("Record %s denied for %s: %s", accessType, role, denyReason)
	}

	if err := s.trail.Append(ctx, audit.Record{
		Action:      action,
		Outcome:     outcome,
		Severity:    severity,
		ActorID:     acc.ID,
		ActorRole:   role,
		ActorName:   acc.Name,
		PatientID:   rec.PatientID,
		TargetType:  audit.TargetRecord,
		TargetID:    rec.ID.String(),
		Description: description,
		Detail: &audit.RecordAccessDetail{
			RecordID:   rec.ID.String(),
			PatientID:  rec.PatientID,
			Category:   rec.Category,
			AccessType: accessType,
			Granted:    allowed,
			DenyReason: denyReason,
			Emergency:  acc.Emergency,
		},
		Meta: meta,
	}); err != nil {
		return err
	}

	if !allowed {
		return apperror.New(apperror.Forbidden, "access denied")
	}
	return nil
}
