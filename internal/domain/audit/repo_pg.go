package audit

import (
	"context"
	"fmt"
	"strings"

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

const auditCols = `id, action, severity, outcome, actor_id, actor_role, actor_name,
	patient_id, target_type, target_id, description, ip_address, user_agent, request_id, detail, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var detail []byte
	err := row.Scan(
		&e.ID, &e.Action, &e.Severity, &e.Outcome, &e.ActorID, &e.ActorRole, &e.ActorName,
		&e.PatientID, &e.TargetType, &e.TargetID, &e.Description,
		&e.IPAddress, &e.UserAgent, &e.RequestID, &detail, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Detail, err = decodeDetail(detail); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RepoPG) Append(ctx context.Context, e *Entry) error {
	detail, err := encodeDetail(e.Detail)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_entry (id, action, severity, outcome, actor_id, actor_role, actor_name,
			patient_id, target_type, target_id, description, ip_address, user_agent, request_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		e.ID, e.Action, e.Severity, e.Outcome, e.ActorID, e.ActorRole, e.ActorName,
		e.PatientID, e.TargetType, e.TargetID, e.Description,
		e.IPAddress, e.UserAgent, e.RequestID, detail, e.CreatedAt,
	)
	return err
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_entry WHERE id = $1", auditCols)
	return scanEntry(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if f.Action != "" {
		where = append(where, fmt.Sprintf("action = $%d", idx))
		args = append(args, f.Action)
		idx++
	}
	if f.ActorID != "" {
		where = append(where, fmt.Sprintf("actor_id = $%d", idx))
		args = append(args, f.ActorID)
		idx++
	}
	if f.ActorRole != "" {
		where = append(where, fmt.Sprintf("actor_role = $%d", idx))
		args = append(args, f.ActorRole)
		idx++
	}
	if f.PatientID != "" {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, f.PatientID)
		idx++
	}
	if f.TargetType != "" {
		where = append(where, fmt.Sprintf("target_type = $%d", idx))
		args = append(args, f.TargetType)
		idx++
	}
	if f.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", idx))
		args = append(args, f.Severity)
		idx++
	}
	if f.Outcome != "" {
		where = append(where, fmt.Sprintf("outcome = $%d", idx))
		args = append(args, f.Outcome)
		idx++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *f.To)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_entry %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM audit_entry %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		auditCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
