package advisory

import (
	"context"
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

// Increment is a single upsert so two concurrent calls cannot both observe
// the pre-bump count.
func (r *RepoPG) Increment(ctx context.Context, actorID string, day time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO advisory_usage (actor_id, usage_date, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (actor_id, usage_date) DO UPDATE
		SET count = advisory_usage.count + 1
		RETURNING count`,
		actorID, day,
	).Scan(&count)
	return count, err
}

func (r *RepoPG) Count(ctx context.Context, actorID string, day time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT count FROM advisory_usage WHERE actor_id = $1 AND usage_date = $2), 0)`,
		actorID, day,
	).Scan(&count)
	return count, err
}
