package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

const verificationCols = `id, doctor_id, status, documents, history, notes,
	rejection_reason, suspension_reason, verified_at, verified_by,
	rejected_at, rejected_by, last_reviewed_at, last_reviewed_by,
	created_at, updated_at`

func scanVerification(row pgx.Row) (*Verification, error) {
	var v Verification
	var docsJSON, historyJSON, notesJSON []byte
	err := row.Scan(
		&v.ID, &v.DoctorID, &v.Status, &docsJSON, &historyJSON, &notesJSON,
		&v.RejectionReason, &v.SuspensionReason, &v.VerifiedAt, &v.VerifiedBy,
		&v.RejectedAt, &v.RejectedBy, &v.LastReviewedAt, &v.LastReviewedBy,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(docsJSON) > 0 {
		if err := json.Unmarshal(docsJSON, &v.Documents); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &v.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &v.Notes); err != nil {
			return nil, fmt.Errorf("unmarshal notes: %w", err)
		}
	}
	return &v, nil
}

func encodeJSONB(v *Verification) (docs, history, notes []byte, err error) {
	if docs, err = json.Marshal(v.Documents); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal documents: %w", err)
	}
	if history, err = json.Marshal(v.History); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal history: %w", err)
	}
	if v.Notes != nil {
		if notes, err = json.Marshal(v.Notes); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal notes: %w", err)
		}
	}
	return docs, history, notes, nil
}

func (r *RepoPG) Create(ctx context.Context, v *Verification) error {
	docs, history, notes, err := encodeJSONB(v)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_verification (id, doctor_id, status, documents, history, notes,
			rejection_reason, suspension_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		v.ID, v.DoctorID, v.Status, docs, history, notes,
		v.RejectionReason, v.SuspensionReason, v.CreatedAt,
	)
	return err
}

func (r *RepoPG) Update(ctx context.Context, v *Verification) error {
	docs, history, notes, err := encodeJSONB(v)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE doctor_verification SET
			status = $2, documents = $3, history = $4, notes = $5,
			rejection_reason = $6, suspension_reason = $7,
			verified_at = $8, verified_by = $9, rejected_at = $10, rejected_by = $11,
			last_reviewed_at = $12, last_reviewed_by = $13, updated_at = $14
		WHERE id = $1`,
		v.ID, v.Status, docs, history, notes,
		v.RejectionReason, v.SuspensionReason,
		v.VerifiedAt, v.VerifiedBy, v.RejectedAt, v.RejectedBy,
		v.LastReviewedAt, v.LastReviewedBy, v.UpdatedAt,
	)
	return err
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Verification, error) {
	q := fmt.Sprintf("SELECT %s FROM doctor_verification WHERE id = $1", verificationCols)
	v, err := scanVerification(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *RepoPG) GetByDoctorID(ctx context.Context, doctorID string) (*Verification, error) {
	q := fmt.Sprintf("SELECT %s FROM doctor_verification WHERE doctor_id = $1", verificationCols)
	v, err := scanVerification(r.conn(ctx).QueryRow(ctx, q, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *RepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Verification, int, error) {
	where := ""
	args := []interface{}{}
	idx := 1
	if status != "" {
		where = fmt.Sprintf("WHERE status = $%d", idx)
		args = append(args, status)
		idx++
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM doctor_verification %s", where)
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM doctor_verification %s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d",
		verificationCols, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}
