package advisory

import (
	"context"
	"fmt"
	"time"

	"github.com/medvault/medvault/internal/domain/audit"
	"github.com/medvault/medvault/internal/platform/apperror"
)

type Service struct {
	usage UsageRepository
	trail *audit.Service
	limit int
	now   func() time.Time
}

func NewService(usage UsageRepository, trail *audit.Service, limit int) *Service {
	if limit <= 0 {
		limit = DailyLimit
	}
	return &Service{usage: usage, trail: trail, limit: limit, now: time.Now}
}

type AnalyzeInput struct {
	Text         string `json:"text"`
	DocumentType string `json:"document_type"`
	Symptoms     string `json:"symptoms"`
}

// Analyze meters the call, runs the keyword analysis, and records the
// request in the audit trail. An actor over the daily limit is refused
// before any analysis runs; the refusal itself is audited.
func (s *Service) Analyze(ctx context.Context, actorID, actorRole string, in AnalyzeInput, meta audit.RequestMeta) (*Analysis, error) {
	if in.Text == "" {
		return nil, apperror.New(apperror.Invalid, "text is required")
	}
	if in.DocumentType == "" {
		in.DocumentType = TypeGeneral
	}
	if !ValidType(in.DocumentType) {
		return nil, apperror.New(apperror.Invalid, "invalid document type %q", in.DocumentType)
	}

	now := s.now().UTC()
	used, err := s.usage.Increment(ctx, actorID, dayOf(now))
	if err != nil {
		return nil, apperror.Wrap(err, "meter advisory usage")
	}

	over := used > s.limit
	outcome := audit.OutcomeSuccess
	description := fmt.Sprintf("Advisory analysis of %s text", in.DocumentType)
	if over {
		outcome = audit.OutcomeFailure
		description = "Advisory analysis refused: daily limit reached"
	}
	if err := s.trail.Append(ctx, audit.Record{
		Action:      audit.ActionAdvisoryRequested,
		Outcome:     outcome,
		ActorID:     actorID,
		ActorRole:   actorRole,
		Description: description,
		Detail: &audit.AdvisoryUsageDetail{
			UsedToday: minInt(used, s.limit),
			Limit:     s.limit,
			OverLimit: over,
		},
		Meta: meta,
	}); err != nil {
		return nil, err
	}
	if over {
		return nil, apperror.New(apperror.RateLimited,
			"daily advisory limit of %d requests reached, resets at midnight UTC", s.limit)
	}

	return analyze(in.Text, in.DocumentType, in.Symptoms, now), nil
}

// Usage reports the actor's metering state without consuming a call.
func (s *Service) Usage(ctx context.Context, actorID string) (*Usage, error) {
	now := s.now().UTC()
	used, err := s.usage.Count(ctx, actorID, dayOf(now))
	if err != nil {
		return nil, apperror.Wrap(err, "read advisory usage")
	}
	if used > s.limit {
		used = s.limit
	}
	return &Usage{
		Used:      used,
		Limit:     s.limit,
		Remaining: s.limit - used,
		ResetsAt:  dayOf(now).Add(24 * time.Hour),
	}, nil
}

// dayOf truncates to the UTC day the metering window is keyed on.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
