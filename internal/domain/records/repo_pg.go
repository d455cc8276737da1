package records

import (
	"context"
	"encoding/json"
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

const recordCols = `id, patient_id, title, description, category, record_date,
	doctor_id, is_emergency_visible, files, created_at, updated_at`

// recordColsQualified mirrors recordCols through the r alias for queries
// that join record_permission. A substring rewrite of recordCols cannot be
// used here because several column names embed "id".
const recordColsQualified = `r.id, r.patient_id, r.title, r.description, r.category, r.record_date,
	r.doctor_id, r.is_emergency_visible, r.files, r.created_at, r.updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var (
		rec   MedicalRecord
		files []byte
	)
	err := row.Scan(
		&rec.ID, &rec.PatientID, &rec.Title, &rec.Description, &rec.Category, &rec.RecordDate,
		&rec.DoctorID, &rec.IsEmergencyVisible, &files, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &rec.Files); err != nil {
			return nil, fmt.Errorf("decode record files: %w", err)
		}
	}
	if rec.Files == nil {
		rec.Files = []FileMeta{}
	}
	return &rec, nil
}

func (r *RepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	files, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("encode record files: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_record (id, patient_id, title, description, category, record_date,
			doctor_id, is_emergency_visible, files, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.PatientID, rec.Title, rec.Description, rec.Category, rec.RecordDate,
		rec.DoctorID, rec.IsEmergencyVisible, files, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM medical_record WHERE id = $1", recordCols)
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (r *RepoPG) Update(ctx context.Context, rec *MedicalRecord) error {
	files, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("encode record files: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE medical_record
		SET title = $2, description = $3, category = $4, record_date = $5,
			is_emergency_visible = $6, files = $7, updated_at = $8
		WHERE id = $1`,
		rec.ID, rec.Title, rec.Description, rec.Category, rec.RecordDate,
		rec.IsEmergencyVisible, files, rec.UpdatedAt,
	)
	return err
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, "DELETE FROM medical_record WHERE id = $1", id)
	return err
}

func (r *RepoPG) ListByPatient(ctx context.Context, patientID, category string, limit, offset int) ([]*MedicalRecord, int, error) {
	where := []string{"patient_id = $1"}
	args := []interface{}{patientID}
	idx := 2
	if category != "" {
		where = append(where, fmt.Sprintf("category = $%d", idx))
		args = append(args, category)
		idx++
	}
	whereClause := "WHERE " + strings.Join(where, " AND ")
	return r.page(ctx, whereClause, args, idx, limit, offset)
}

// ListAccessible joins the permission overlay so pagination counts only what
// the doctor may actually see.
func (r *RepoPG) ListAccessible(ctx context.Context, patientID, doctorID, category string, now time.Time, limit, offset int) ([]*MedicalRecord, int, error) {
	where := []string{
		"r.patient_id = $1",
		"p.doctor_id = $2",
		"p.granted",
		"(p.expires_at IS NULL OR p.expires_at > $3)",
	}
	args := []interface{}{patientID, doctorID, now}
	idx := 4
	if category != "" {
		where = append(where, fmt.Sprintf("r.category = $%d", idx))
		args = append(args, category)
		idx++
	}
	whereClause := "WHERE " + strings.Join(where, " AND ")
	join := "FROM medical_record r JOIN record_permission p ON p.record_id = r.id"

	countQ := fmt.Sprintf("SELECT COUNT(*) %s %s", join, whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s %s %s ORDER BY r.record_date DESC LIMIT $%d OFFSET $%d",
		recordColsQualified, join, whereClause, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.queryRecords(ctx, q, args)
	return items, total, err
}

func (r *RepoPG) GetPermission(ctx context.Context, recordID uuid.UUID, doctorID string) (*RecordPermission, error) {
	var p RecordPermission
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, record_id, doctor_id, granted, granted_at, expires_at, access_level
		FROM record_permission
		WHERE record_id = $1 AND doctor_id = $2`,
		recordID, doctorID,
	).Scan(&p.ID, &p.RecordID, &p.DoctorID, &p.Granted, &p.GrantedAt, &p.ExpiresAt, &p.AccessLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyGrant upserts a permission row for every matching record of the
// patient in one statement. "all" in the categories matches everything.
func (r *RepoPG) ApplyGrant(ctx context.Context, g Grant) error {
	matchAll := false
	for _, c := range g.Categories {
		if c == "all" {
			matchAll = true
		}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO record_permission (id, record_id, doctor_id, granted, granted_at, expires_at, access_level)
		SELECT gen_random_uuid(), id, $2, true, $5, $6, $7
		FROM medical_record
		WHERE patient_id = $1 AND ($3 OR category = ANY($4))
		ON CONFLICT (record_id, doctor_id) DO UPDATE
		SET granted = true, granted_at = $5, expires_at = $6, access_level = $7`,
		g.PatientID, g.DoctorID, matchAll, g.Categories, g.GrantedAt, nullableTime(g.ExpiresAt), g.AccessLevel,
	)
	return err
}

// RevokeGrant flips the doctor's permissions on the patient's records to
// ungranted. Rows stay behind as history.
func (r *RepoPG) RevokeGrant(ctx context.Context, patientID, doctorID string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE record_permission
		SET granted = false
		WHERE doctor_id = $2
			AND record_id IN (SELECT id FROM medical_record WHERE patient_id = $1)`,
		patientID, doctorID,
	)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *RepoPG) page(ctx context.Context, whereClause string, args []interface{}, idx, limit, offset int) ([]*MedicalRecord, int, error) {
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM medical_record %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM medical_record %s ORDER BY record_date DESC LIMIT $%d OFFSET $%d",
		recordCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)
	items, err := r.queryRecords(ctx, q, args)
	return items, total, err
}

func (r *RepoPG) queryRecords(ctx context.Context, q string, args []interface{}) ([]*MedicalRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MedicalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
