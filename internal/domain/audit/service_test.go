package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medvault/medvault/internal/platform/apperror"
)

type mockRepo struct {
	mu      sync.Mutex
	entries []*Entry
	failing bool
}

func (m *mockRepo) Append(_ context.Context, e *Entry) error {
	if m.failing {
		return errors.New("db down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.New("no rows")
}

func (m *mockRepo) Query(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*Entry
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		if f.Outcome != "" && e.Outcome != f.Outcome {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func TestAppend_FillsDefaults(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	err := svc.Append(context.Background(), Record{
		Action:    ActionPatientDataAccessed,
		ActorID:   "doctor-1",
		ActorRole: "doctor",
		PatientID: "patient-1",
		Detail: &RecordAccessDetail{
			RecordID:   "rec-1",
			PatientID:  "patient-1",
			AccessType: "view",
			Granted:    true,
		},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	e := repo.entries[0]
	if e.ID == uuid.Nil {
		t.Error("expected generated ID")
	}
	if e.Severity != SeverityMedium {
		t.Errorf("expected default severity medium for data access, got %s", e.Severity)
	}
	if e.Outcome != OutcomeSuccess {
		t.Errorf("expected default outcome success, got %s", e.Outcome)
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Errorf("expected created_at %v, got %v", fixed, e.CreatedAt)
	}
}

func TestAppend_EmergencyIsCritical(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Record{
		Action:  ActionEmergencyAccess,
		ActorID: "responder-1",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if repo.entries[0].Severity != SeverityCritical {
		t.Errorf("expected critical severity for emergency access, got %s", repo.entries[0].Severity)
	}
}

func TestAppend_RejectsUnknownAction(t *testing.T) {
	svc := NewService(&mockRepo{})

	err := svc.Append(context.Background(), Record{Action: "SOMETHING_ELSE"})
	if !apperror.IsKind(err, apperror.Invalid) {
		t.Errorf("expected Invalid error for unknown action, got %v", err)
	}
}

func TestAppend_StorageFailureIsInternal(t *testing.T) {
	svc := NewService(&mockRepo{failing: true})

	err := svc.Append(context.Background(), Record{
		Action:  ActionPatientDataAccessed,
		ActorID: "doctor-1",
	})
	if !apperror.IsKind(err, apperror.Internal) {
		t.Errorf("expected Internal error when storage fails, got %v", err)
	}
}

func TestAppend_SeverityOverride(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Record{
		Action:   ActionPatientDataAccessed,
		Outcome:  OutcomeFailure,
		Severity: SeverityHigh,
		ActorID:  "doctor-1",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	e := repo.entries[0]
	if e.Severity != SeverityHigh {
		t.Errorf("expected overridden severity high, got %s", e.Severity)
	}
	if e.Outcome != OutcomeFailure {
		t.Errorf("expected outcome failure, got %s", e.Outcome)
	}
}

func TestQuery_Filters(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	for _, rec := range []Record{
		{Action: ActionPatientDataAccessed, ActorID: "doctor-1"},
		{Action: ActionPatientDataAccessed, ActorID: "doctor-2"},
		{Action: ActionAccessRequestCreated, ActorID: "doctor-1"},
	} {
		if err := svc.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	items, total, err := svc.Query(context.Background(), Filter{ActorID: "doctor-1"}, 10, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 entries for doctor-1, got total=%d len=%d", total, len(items))
	}

	items, total, err = svc.Query(context.Background(), Filter{Action: ActionAccessRequestCreated}, 10, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 entry by action, got %d", total)
	}
	if len(items) == 1 && items[0].ActorID != "doctor-1" {
		t.Errorf("unexpected actor %s", items[0].ActorID)
	}
}

func TestDetailRoundTrip(t *testing.T) {
	tests := []Detail{
		&ConsentDecisionDetail{RequestID: "req-1", DoctorID: "d-1", PatientID: "p-1", Decision: "approved", AutoApproved: true},
		&VerificationReviewDetail{DoctorID: "d-1", FromStatus: "submitted", ToStatus: "verified", ReviewerID: "admin-1"},
		&RecordAccessDetail{RecordID: "r-1", PatientID: "p-1", AccessType: "download", Granted: false, DenyReason: "no active grant"},
		&AdvisoryUsageDetail{UsedToday: 51, Limit: 50, OverLimit: true},
		&AdminActionDetail{Operation: "trust_list_update", TargetID: "p-1"},
	}

	for _, d := range tests {
		data, err := encodeDetail(d)
		if err != nil {
			t.Fatalf("encode %s: %v", d.DetailKind(), err)
		}
		decoded, err := decodeDetail(data)
		if err != nil {
			t.Fatalf("decode %s: %v", d.DetailKind(), err)
		}
		if decoded.DetailKind() != d.DetailKind() {
			t.Errorf("kind mismatch: %s != %s", decoded.DetailKind(), d.DetailKind())
		}
	}
}

func TestDecodeDetail_UnknownKind(t *testing.T) {
	if _, err := decodeDetail([]byte(`{"kind":"mystery","payload":{}}`)); err == nil {
		t.Error("expected error for unknown detail kind")
	}
}

func TestDecodeDetail_Nil(t *testing.T) {
	d, err := decodeDetail(nil)
	if err != nil || d != nil {
		t.Errorf("expected nil detail for empty payload, got %v, %v", d, err)
	}
}
