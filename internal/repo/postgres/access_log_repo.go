package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mysafehouse/access-api/internal/domain"
)

// AccessLogRepo is append-only: no update or delete is exposed. The log is an
// audit sink, never consulted for authorization.
type AccessLogRepo interface {
	Append(ctx context.Context, entry *domain.AccessLogEntry) error
	ListByProperty(ctx context.Context, propertyID int64, limit, offset int) ([]domain.AccessLogEntry, error)
}

type accessLogRepo struct {
	pool *pgxpool.Pool
}

func NewAccessLogRepo(pool *pgxpool.Pool) AccessLogRepo {
	return &accessLogRepo{pool: pool}
}

func (r *accessLogRepo) Append(ctx context.Context, entry *domain.AccessLogEntry) error {
	const q = `INSERT INTO access_logs (
		access_code_id, property_id, used_by_name, used_by_contact,
		access_method, location_data, request_id, used_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,now())`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		entry.AccessCodeID, entry.PropertyID, entry.UsedByName, entry.UsedByContact,
		entry.AccessMethod, entry.LocationData, entry.RequestID,
	)
	return err
}

func (r *accessLogRepo) ListByProperty(ctx context.Context, propertyID int64, limit, offset int) ([]domain.AccessLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT id, access_code_id, property_id,
COALESCE(used_by_name,''), COALESCE(used_by_contact,''),
access_method, location_data, request_id, used_at
FROM access_logs
WHERE property_id=$1
ORDER BY used_at DESC
LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, propertyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AccessLogEntry
	for rows.Next() {
		var e domain.AccessLogEntry
		if err := rows.Scan(
			&e.ID, &e.AccessCodeID, &e.PropertyID,
			&e.UsedByName, &e.UsedByContact,
			&e.AccessMethod, &e.LocationData, &e.RequestID, &e.UsedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
