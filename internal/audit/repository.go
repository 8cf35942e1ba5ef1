package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Query carries the normalised filters for a repository call.
type Query struct {
	CompanyID int64
	From      pgtype.Timestamptz
	To        pgtype.Timestamptz
	ActorID   pgtype.Int8
	Entity    pgtype.Text
	EntityID  pgtype.Text
	Action    pgtype.Text
	Limit     int32
	Offset    int32
}

// Repository reads audit_logs.
type Repository interface {
	List(ctx context.Context, q Query) ([]Entry, error)
	Count(ctx context.Context, q Query) (int, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const auditFilter = `WHERE company_id=$1
  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
  AND ($3::timestamptz IS NULL OR occurred_at < $3)
  AND ($4::bigint IS NULL OR actor_id = $4)
  AND ($5::text IS NULL OR entity = $5)
  AND ($6::text IS NULL OR entity_id = $6)
  AND ($7::text IS NULL OR action = $7)`

func (r *pgRepository) List(ctx context.Context, q Query) ([]Entry, error) {
	query := `SELECT id, occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs ` + auditFilter +
		` ORDER BY occurred_at DESC, id DESC`
	args := []any{q.CompanyID, q.From, q.To, q.ActorID, q.Entity, q.EntityID, q.Action}
	if q.Limit > 0 {
		query += ` LIMIT $8 OFFSET $9`
		args = append(args, q.Limit, q.Offset)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepository) Count(ctx context.Context, q Query) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs `+auditFilter,
		q.CompanyID, q.From, q.To, q.ActorID, q.Entity, q.EntityID, q.Action).Scan(&n)
	return n, err
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func optionalID(id int64) pgtype.Int8 {
	if id <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}
