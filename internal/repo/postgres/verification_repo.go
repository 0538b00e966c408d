package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mysafehouse/access-api/internal/domain"
)

type VerificationRepo interface {
	Create(ctx context.Context, code *domain.VerificationCode) (*domain.VerificationCode, error)
	// GetLatestUnverified returns the newest code for the request that has
	// not been consumed yet, or nil.
	GetLatestUnverified(ctx context.Context, requestID int64) (*domain.VerificationCode, error)
	// IncrementAttempts bumps the counter atomically and returns the new
	// value, so attempt accounting is monotonic under races.
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	// MarkVerified stamps verified_at only if the code is still unverified;
	// returns false on replay.
	MarkVerified(ctx context.Context, id int64) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type verificationRepo struct {
	pool *pgxpool.Pool
}

func NewVerificationRepo(pool *pgxpool.Pool) VerificationRepo {
	return &verificationRepo{pool: pool}
}

const verificationCols = `id, request_id, code_hash, channel, expires_at, attempts, max_attempts, verified_at, created_at`

func scanVerification(row pgx.Row) (*domain.VerificationCode, error) {
	var v domain.VerificationCode
	err := row.Scan(
		&v.ID, &v.RequestID, &v.CodeHash, &v.Channel,
		&v.ExpiresAt, &v.Attempts, &v.MaxAttempts, &v.VerifiedAt, &v.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *verificationRepo) Create(ctx context.Context, code *domain.VerificationCode) (*domain.VerificationCode, error) {
	const q = `INSERT INTO verification_codes (
		request_id, code_hash, channel, expires_at, attempts, max_attempts
	) VALUES ($1,$2,$3,$4,0,$5)
	RETURNING ` + verificationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanVerification(r.pool.QueryRow(ctx, q,
		code.RequestID, code.CodeHash, code.Channel, code.ExpiresAt, code.MaxAttempts,
	))
}

func (r *verificationRepo) GetLatestUnverified(ctx context.Context, requestID int64) (*domain.VerificationCode, error) {
	const q = `SELECT ` + verificationCols + ` FROM verification_codes
WHERE request_id=$1 AND verified_at IS NULL
ORDER BY id DESC
LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanVerification(r.pool.QueryRow(ctx, q, requestID))
}

func (r *verificationRepo) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	const q = `UPDATE verification_codes SET attempts = attempts + 1 WHERE id=$1 RETURNING attempts`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, id).Scan(&attempts)
	return attempts, err
}

func (r *verificationRepo) MarkVerified(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE verification_codes SET verified_at = now() WHERE id=$1 AND verified_at IS NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *verificationRepo) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM verification_codes
WHERE (verified_at IS NOT NULL AND verified_at < now() - interval '30 days')
   OR (verified_at IS NULL AND expires_at < now() - interval '30 days')`

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
