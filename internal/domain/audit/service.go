package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/apperror"
)

// Record is what callers supply when appending to the trail. The service
// fills in identity, default severity, and the timestamp.
type Record struct {
	Action      string
	Outcome     string
	Severity    string // optional; defaults from the action
	ActorID     string
	ActorRole   string
	ActorName   string
	PatientID   string
	TargetType  string
	TargetID    string
	Description string
	Detail      Detail
	Meta        RequestMeta
}

// RequestMeta carries request-scoped context into the trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Append writes one entry. Failures are Internal errors; callers on read
// paths treat them as fatal so that no access goes unrecorded.
func (s *Service) Append(ctx context.Context, rec Record) error {
	if !ValidAction(rec.Action) {
		return apperror.New(apperror.Invalid, "unknown audit action %q", rec.Action)
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeSuccess
	}
	severity := rec.Severity
	if severity == "" {
		severity = SeverityFor(rec.Action)
	}

	e := &Entry{
		ID:          uuid.New(),
		Action:      rec.Action,
		Severity:    severity,
		Outcome:     rec.Outcome,
		ActorID:     rec.ActorID,
		ActorRole:   rec.ActorRole,
		ActorName:   rec.ActorName,
		PatientID:   rec.PatientID,
		TargetType:  rec.TargetType,
		TargetID:    rec.TargetID,
		Description: rec.Description,
		IPAddress:   rec.Meta.IPAddress,
		UserAgent:   rec.Meta.UserAgent,
		RequestID:   rec.Meta.RequestID,
		Detail:      rec.Detail,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return apperror.Wrap(err, "append audit entry")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.New(apperror.NotFound, "audit entry not found")
	}
	return e, nil
}

func (s *Service) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	items, total, err := s.repo.Query(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "query audit trail")
	}
	return items, total, nil
}
