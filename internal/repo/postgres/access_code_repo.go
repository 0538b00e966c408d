package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mysafehouse/access-api/internal/domain"
)

type AccessCodeRepo interface {
	Create(ctx context.Context, code *domain.AccessCode) (*domain.AccessCode, error)
	// GetActive returns the most recently created usable code for the
	// property, or nil when none exists.
	GetActive(ctx context.Context, propertyID int64) (*domain.AccessCode, error)
	GetByCode(ctx context.Context, code string, propertyID int64) (*domain.AccessCode, error)
	// IncrementUse bumps use_count atomically in SQL; concurrent disclosures
	// must not lose updates.
	IncrementUse(ctx context.Context, id int64) error
	ListByProperty(ctx context.Context, propertyID int64, limit, offset int) ([]domain.AccessCode, error)
}

type accessCodeRepo struct {
	pool *pgxpool.Pool
}

func NewAccessCodeRepo(pool *pgxpool.Pool) AccessCodeRepo {
	return &accessCodeRepo{pool: pool}
}

const accessCodeCols = `id, property_id, access_code, code_type,
access_granted_to, access_reason, granted_by_user_id,
expires_at, max_uses, use_count, is_active, created_at`

func scanAccessCode(row pgx.Row) (*domain.AccessCode, error) {
	var c domain.AccessCode
	err := row.Scan(
		&c.ID, &c.PropertyID, &c.Code, &c.CodeType,
		&c.GrantedTo, &c.Reason, &c.GrantedByUserID,
		&c.ExpiresAt, &c.MaxUses, &c.UseCount, &c.IsActive, &c.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *accessCodeRepo) Create(ctx context.Context, code *domain.AccessCode) (*domain.AccessCode, error) {
	const q = `INSERT INTO access_codes (
		property_id, access_code, code_type,
		access_granted_to, access_reason, granted_by_user_id,
		expires_at, max_uses, use_count, is_active
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,true)
	RETURNING ` + accessCodeCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanAccessCode(r.pool.QueryRow(ctx, q,
		code.PropertyID, code.Code, code.CodeType,
		code.GrantedTo, code.Reason, code.GrantedByUserID,
		code.ExpiresAt, code.MaxUses,
	))
}

func (r *accessCodeRepo) GetActive(ctx context.Context, propertyID int64) (*domain.AccessCode, error) {
	const q = `SELECT ` + accessCodeCols + ` FROM access_codes
WHERE property_id=$1
  AND is_active=true
  AND expires_at > now()
  AND (max_uses IS NULL OR use_count < max_uses)
ORDER BY created_at DESC
LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanAccessCode(r.pool.QueryRow(ctx, q, propertyID))
}

func (r *accessCodeRepo) GetByCode(ctx context.Context, code string, propertyID int64) (*domain.AccessCode, error) {
	const q = `SELECT ` + accessCodeCols + ` FROM access_codes
WHERE access_code=$1 AND property_id=$2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanAccessCode(r.pool.QueryRow(ctx, q, code, propertyID))
}

func (r *accessCodeRepo) IncrementUse(ctx context.Context, id int64) error {
	const q = `UPDATE access_codes SET use_count = use_count + 1, used_at = now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *accessCodeRepo) ListByProperty(ctx context.Context, propertyID int64, limit, offset int) ([]domain.AccessCode, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + accessCodeCols + ` FROM access_codes
WHERE property_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, propertyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []domain.AccessCode
	for rows.Next() {
		var c domain.AccessCode
		if err := rows.Scan(
			&c.ID, &c.PropertyID, &c.Code, &c.CodeType,
			&c.GrantedTo, &c.Reason, &c.GrantedByUserID,
			&c.ExpiresAt, &c.MaxUses, &c.UseCount, &c.IsActive, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}
