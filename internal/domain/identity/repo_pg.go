package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

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

const actorCols = `id, email, role, active, first_name, last_name, phone,
	doctor_profile, emergency_profile, last_login_at, created_at, updated_at`

func scanActor(row pgx.Row) (*Actor, error) {
	var a Actor
	var doctorJSON, emergencyJSON []byte
	err := row.Scan(
		&a.ID, &a.Email, &a.Role, &a.Active, &a.FirstName, &a.LastName, &a.Phone,
		&doctorJSON, &emergencyJSON, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(doctorJSON) > 0 {
		if err := json.Unmarshal(doctorJSON, &a.DoctorProfile); err != nil {
			return nil, fmt.Errorf("unmarshal doctor profile: %w", err)
		}
	}
	if len(emergencyJSON) > 0 {
		if err := json.Unmarshal(emergencyJSON, &a.EmergencyProfile); err != nil {
			return nil, fmt.Errorf("unmarshal emergency profile: %w", err)
		}
	}
	return &a, nil
}

func marshalProfile(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *RepoPG) Create(ctx context.Context, a *Actor) error {
	var doctorJSON, emergencyJSON []byte
	var err error
	if a.DoctorProfile != nil {
		if doctorJSON, err = marshalProfile(a.DoctorProfile); err != nil {
			return err
		}
	}
	if a.EmergencyProfile != nil {
		if emergencyJSON, err = marshalProfile(a.EmergencyProfile); err != nil {
			return err
		}
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO actor (id, email, role, active, first_name, last_name, phone,
			doctor_profile, emergency_profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		a.ID, a.Email, a.Role, a.Active, a.FirstName, a.LastName, a.Phone,
		doctorJSON, emergencyJSON, a.CreatedAt,
	)
	return err
}

func (r *RepoPG) GetByID(ctx context.Context, id string) (*Actor, error) {
	q := fmt.Sprintf("SELECT %s FROM actor WHERE id = $1", actorCols)
	a, err := scanActor(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *RepoPG) GetByEmail(ctx context.Context, email string) (*Actor, error) {
	q := fmt.Sprintf("SELECT %s FROM actor WHERE lower(email) = lower($1)", actorCols)
	a, err := scanActor(r.conn(ctx).QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *RepoPG) FindPatientByEmail(ctx context.Context, fragment string) (*Actor, error) {
	q := fmt.Sprintf(`SELECT %s FROM actor
		WHERE role = 'patient' AND active AND email ILIKE '%%' || $1 || '%%'
		ORDER BY email LIMIT 1`, actorCols)
	a, err := scanActor(r.conn(ctx).QueryRow(ctx, q, fragment))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *RepoPG) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		"UPDATE actor SET last_login_at = $2 WHERE id = $1", id, at)
	return err
}

func (r *RepoPG) IsTrusted(ctx context.Context, patientID, doctorID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM trust_list WHERE patient_id = $1 AND doctor_id = $2)",
		patientID, doctorID,
	).Scan(&exists)
	return exists, err
}

func (r *RepoPG) AddTrusted(ctx context.Context, patientID, doctorID string, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO trust_list (patient_id, doctor_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (patient_id, doctor_id) DO NOTHING`,
		patientID, doctorID, at,
	)
	return err
}

func (r *RepoPG) RemoveTrusted(ctx context.Context, patientID, doctorID string) error {
	_, err := r.conn(ctx).Exec(ctx,
		"DELETE FROM trust_list WHERE patient_id = $1 AND doctor_id = $2",
		patientID, doctorID,
	)
	return err
}

func (r *RepoPG) ListTrusted(ctx context.Context, patientID string) ([]*TrustedDoctor, error) {
	rows, err := r.conn(ctx).Query(ctx,
		"SELECT patient_id, doctor_id, added_at FROM trust_list WHERE patient_id = $1 ORDER BY added_at DESC",
		patientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*TrustedDoctor
	for rows.Next() {
		var t TrustedDoctor
		if err := rows.Scan(&t.PatientID, &t.DoctorID, &t.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	return items, rows.Err()
}
