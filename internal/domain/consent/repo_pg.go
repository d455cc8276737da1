package consent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medvault/medvault/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consentCols = `id, doctor_id, patient_id, status, reason, access_level, categories,
	requested_at, approved_at, rejected_at, rejection_reason, revoked_at, expires_at,
	auto_approved, ip_address, user_agent, created_at, updated_at`

func scanRequest(row pgx.Row) (*ConsentRequest, error) {
	var cr ConsentRequest
	err := row.Scan(
		&cr.ID, &cr.DoctorID, &cr.PatientID, &cr.Status, &cr.Reason, &cr.AccessLevel, &cr.Categories,
		&cr.RequestedAt, &cr.ApprovedAt, &cr.RejectedAt, &cr.RejectionReason, &cr.RevokedAt, &cr.ExpiresAt,
		&cr.AutoApproved, &cr.IPAddress, &cr.UserAgent, &cr.CreatedAt, &cr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

// Create is a single statement so the duplicate-suppression check and the
// insert cannot interleave with a concurrent request.
func (r *RepoPG) Create(ctx context.Context, cr *ConsentRequest, window time.Duration) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consent_request (id, doctor_id, patient_id, status, reason, access_level,
			categories, requested_at, approved_at, expires_at, auto_approved,
			ip_address, user_agent, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $8, $8
		WHERE NOT EXISTS (
			SELECT 1 FROM consent_request
			WHERE doctor_id = $2 AND patient_id = $3 AND status = 'pending'
				AND requested_at > $8 - $14::interval
		)`,
		cr.ID, cr.DoctorID, cr.PatientID, cr.Status, cr.Reason, cr.AccessLevel,
		cr.Categories, cr.RequestedAt, cr.ApprovedAt, cr.ExpiresAt, cr.AutoApproved,
		cr.IPAddress, cr.UserAgent, window.String(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsentRequest, error) {
	q := fmt.Sprintf("SELECT %s FROM consent_request WHERE id = $1", consentCols)
	cr, err := scanRequest(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cr, err
}

func (r *RepoPG) Approve(ctx context.Context, id uuid.UUID, approvedAt, expiresAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_request
		SET status = 'approved', approved_at = $2, expires_at = $3, updated_at = $2
		WHERE id = $1 AND status = 'pending'`,
		id, approvedAt, expiresAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) Reject(ctx context.Context, id uuid.UUID, rejectedAt time.Time, reason string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_request
		SET status = 'rejected', rejected_at = $2, rejection_reason = $3, updated_at = $2
		WHERE id = $1 AND status = 'pending'`,
		id, rejectedAt, reason,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_request
		SET status = 'expired', revoked_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'approved'
			AND (expires_at IS NULL OR expires_at > $2)`,
		id, revokedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) ListByDoctor(ctx context.Context, doctorID, status string, limit, offset int) ([]*ConsentRequest, int, error) {
	return r.list(ctx, "doctor_id = $1", doctorID, status, limit, offset)
}

func (r *RepoPG) ListByPatient(ctx context.Context, patientID, status string, limit, offset int) ([]*ConsentRequest, int, error) {
	return r.list(ctx, "patient_id = $1", patientID, status, limit, offset)
}

func (r *RepoPG) ListAll(ctx context.Context, status string, limit, offset int) ([]*ConsentRequest, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1
	if status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, status)
		idx++
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	return r.page(ctx, whereClause, args, idx, limit, offset)
}

func (r *RepoPG) list(ctx context.Context, ownerCond, ownerID, status string, limit, offset int) ([]*ConsentRequest, int, error) {
	where := []string{ownerCond}
	args := []interface{}{ownerID}
	idx := 2
	if status != "" {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, status)
		idx++
	}
	whereClause := "WHERE " + strings.Join(where, " AND ")
	return r.page(ctx, whereClause, args, idx, limit, offset)
}

func (r *RepoPG) page(ctx context.Context, whereClause string, args []interface{}, idx, limit, offset int) ([]*ConsentRequest, int, error) {
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM consent_request %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM consent_request %s ORDER BY requested_at DESC LIMIT $%d OFFSET $%d",
		consentCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*ConsentRequest
	for rows.Next() {
		cr, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cr)
	}
	return items, total, rows.Err()
}
