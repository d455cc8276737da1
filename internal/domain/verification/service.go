package verification

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

// Default reasons applied when an admin omits one.
const (
	defaultRejectionReason   = "Document verification failed"
	defaultResubmissionNotes = "Please resubmit documents"
	defaultSuspensionReason  = "Account suspended"
	blobCategoryVerification = "verification"
)

type Service struct {
	repo  Repository
	blobs blobstore.BlobStore
	trail *audit.Service
	now   func() time.Time
}

func NewService(repo Repository, blobs blobstore.BlobStore, trail *audit.Service) *Service {
	return &Service{repo: repo, blobs: blobs, trail: trail, now: time.Now}
}

// DocumentUpload is one file in a submission.
type DocumentUpload struct {
	Type        string
	FileName    string
	ContentType string
	Data        []byte
}

// Submit creates or replaces the doctor's verification submission. When a
// prior round exists in a resubmittable state, its documents and state are
// archived into history before being replaced. Submitting while a review is
// pending, or while suspended, is a conflict.
func (s *Service) Submit(ctx context.Context, doctorID string, uploads []DocumentUpload, meta audit.RequestMeta) (*Verification, error) {
	if len(uploads) == 0 {
		return nil, apperror.New(apperror.Invalid, "at least one document is required")
	}

	now := s.now().UTC()
	docs := make([]Document, 0, len(uploads))
	for _, u := range uploads {
		if !ValidDocumentType(u.Type) {
			return nil, apperror.New(apperror.Invalid, "invalid document type %q", u.Type)
		}
		stored, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
			FileName:    u.FileName,
			ContentType: u.ContentType,
			OwnerID:     doctorID,
			Category:    blobCategoryVerification,
			CreatedBy:   doctorID,
		}, bytes.NewReader(u.Data))
		if err != nil {
			return nil, uploadError(u.FileName, err)
		}
		docs = append(docs, Document{
			Type:       u.Type,
			FileName:   stored.FileName,
			FileSize:   stored.Size,
			StorageRef: stored.ID,
			UploadedAt: now,
		})
	}

	v, err := s.repo.GetByDoctorID(ctx, doctorID)
	if err != nil {
		return nil, apperror.Wrap(err, "load verification")
	}

	if v == nil {
		v = &Verification{
			ID:        uuid.New(),
			DoctorID:  doctorID,
			Status:    StatusSubmitted,
			Documents: docs,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, v); err != nil {
			return nil, apperror.Wrap(err, "create verification")
		}
	} else {
		if !resubmittableFrom[v.Status] {
			return nil, apperror.ConflictState(v.Status, "submission is not allowed")
		}
		v.History = append(v.History, SubmissionRound{
			SubmittedAt: v.UpdatedAt,
			Status:      v.Status,
			Documents:   v.Documents,
		})
		v.Status = StatusSubmitted
		v.Documents = docs
		v.RejectionReason = nil
		v.Notes = nil
		v.UpdatedAt = now
		if err := s.repo.Update(ctx, v); err != nil {
			return nil, apperror.Wrap(err, "update verification")
		}
	}

	if err := s.trail.Append(ctx, audit.Record{
		Action:      audit.ActionVerificationSubmitted,
		ActorID:     doctorID,
		ActorRole:   auth.RoleDoctor,
		TargetType:  audit.TargetVerification,
		TargetID:    v.ID.String(),
		Description: fmt.Sprintf("Doctor submitted %d verification documents", len(docs)),
		Detail: &audit.VerificationReviewDetail{
			DoctorID: doctorID,
			ToStatus: StatusSubmitted,
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}
	return v, nil
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
		return apperror.Wrap(err, "store document")
	}
}

var auditActionByReview = map[string]string{
	ActionApprove:             audit.ActionVerificationApproved,
	ActionReject:              audit.ActionVerificationRejected,
	ActionRequestResubmission: audit.ActionVerificationResubmissionRequest,
	ActionSuspend:             audit.ActionVerificationSuspended,
}

// Review applies an admin decision. The action must be valid from the
// record's current state; otherwise the caller gets a conflict naming it.
func (s *Service) Review(ctx context.Context, adminID string, id uuid.UUID, action, reason string, meta audit.RequestMeta) (*Verification, error) {
	if _, ok := auditActionByReview[action]; !ok {
		return nil, apperror.New(apperror.Invalid, "invalid review action %q", action)
	}

	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Wrap(err, "load verification")
	}
	if v == nil {
		return nil, apperror.New(apperror.NotFound, "verification not found")
	}
	if !ActionApplies(action, v.Status) {
		return nil, apperror.ConflictState(v.Status, "%s does not apply", action)
	}

	now := s.now().UTC()
	fromStatus := v.Status
	switch action {
	case ActionApprove:
		v.Status = StatusVerified
		v.VerifiedAt = &now
		v.VerifiedBy = &adminID
	case ActionReject:
		if reason == "" {
			reason = defaultRejectionReason
		}
		v.Status = StatusRejected
		v.RejectedAt = &now
		v.RejectedBy = &adminID
		v.RejectionReason = &reason
	case ActionRequestResubmission:
		if reason == "" {
			reason = defaultResubmissionNotes
		}
		v.Status = StatusNeedResubmission
		v.Notes = &ReviewNotes{AdminID: adminID, Notes: reason, CreatedAt: now}
	case ActionSuspend:
		if reason == "" {
			reason = defaultSuspensionReason
		}
		v.Status = StatusSuspended
		v.SuspensionReason = &reason
	}
	v.LastReviewedAt = &now
	v.LastReviewedBy = &adminID
	v.UpdatedAt = now

	if err := s.repo.Update(ctx, v); err != nil {
		return nil, apperror.Wrap(err, "update verification")
	}

	if err := s.trail.Append(ctx, audit.Record{
		Action:      auditActionByReview[action],
		ActorID:     adminID,
		ActorRole:   auth.RoleAdmin,
		TargetType:  audit.TargetVerification,
		TargetID:    v.ID.String(),
		Description: fmt.Sprintf("Admin moved doctor verification from %s to %s", fromStatus, v.Status),
		Detail: &audit.VerificationReviewDetail{
			DoctorID:   v.DoctorID,
			FromStatus: fromStatus,
			ToStatus:   v.Status,
			Notes:      reason,
			ReviewerID: adminID,
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns the doctor's own verification view. A doctor who has never
// submitted sees a synthetic not_submitted record rather than a NotFound.
func (s *Service) Get(ctx context.Context, doctorID string) (*Verification, error) {
	v, err := s.repo.GetByDoctorID(ctx, doctorID)
	if err != nil {
		return nil, apperror.Wrap(err, "load verification")
	}
	if v == nil {
		return &Verification{
			DoctorID:  doctorID,
			Status:    StatusNotSubmitted,
			Documents: []Document{},
			History:   []SubmissionRound{},
		}, nil
	}
	return v, nil
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Verification, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, apperror.New(apperror.Invalid, "invalid status filter %q", status)
	}
	items, total, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "list verifications")
	}
	return items, total, nil
}

// IsVerified reports whether the doctor's verification is currently
// approved. It satisfies the checker interface the identity store injects.
func (s *Service) IsVerified(ctx context.Context, doctorID string) (bool, error) {
	v, err := s.repo.GetByDoctorID(ctx, doctorID)
	if err != nil {
		return false, apperror.Wrap(err, "load verification")
	}
	return v != nil && v.Status == StatusVerified, nil
}

// OpenDocument streams a stored verification document. Only the owning
// doctor or an admin may read it.
func (s *Service) OpenDocument(ctx context.Context, actorID, actorRole, storageRef string) (*blobstore.BlobMetadata, []byte, error) {
	meta, err := s.blobs.GetMetadata(ctx, storageRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, nil, apperror.New(apperror.NotFound, "document not found")
		}
		return nil, nil, apperror.Wrap(err, "load document metadata")
	}
	if actorRole != auth.RoleAdmin && meta.OwnerID != actorID {
		return nil, nil, apperror.New(apperror.Forbidden, "access denied")
	}
	rc, meta, err := s.blobs.Download(ctx, storageRef)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "open document")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, apperror.Wrap(err, "read document")
	}
	return meta, data, nil
}
