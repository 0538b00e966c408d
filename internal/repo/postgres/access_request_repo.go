package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mysafehouse/access-api/internal/domain"
)

// ErrDuplicatePending surfaces the partial unique index on
// (property_id, requester_phone, requester_email) WHERE status='pending'.
var ErrDuplicatePending = errors.New("duplicate pending access request")

type AccessRequestRepo interface {
	Create(ctx context.Context, req *domain.AccessRequest) (*domain.AccessRequest, error)
	GetByID(ctx context.Context, id int64) (*domain.AccessRequest, error)
	GetByToken(ctx context.Context, token string) (*domain.AccessRequest, error)
	HasPending(ctx context.Context, propertyID int64, phone, email string) (bool, error)
	// Decide performs the conditional terminal transition; it affects a row
	// only when the token matches and the request is still open, so two
	// concurrent clicks of the same link have exactly one winner.
	Decide(ctx context.Context, id int64, token string, status domain.RequestStatus) (*domain.AccessRequest, error)
	// MarkVerified moves pending -> verified.
	MarkVerified(ctx context.Context, id int64) (bool, error)
	// MarkExpired moves pending -> expired; no-op when the request has moved on.
	MarkExpired(ctx context.Context, id int64) (bool, error)
	ExpireStale(ctx context.Context) (int64, error)
	ListPendingByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.AccessRequest, error)
}

type accessRequestRepo struct {
	pool *pgxpool.Pool
}

func NewAccessRequestRepo(pool *pgxpool.Pool) AccessRequestRepo {
	return &accessRequestRepo{pool: pool}
}

const requestCols = `id, property_id, requester_email, requester_phone, requester_name,
access_code_entered, verification_token, status,
ip_address, user_agent, location_data, location_verified,
created_at, expires_at, approved_at`

func scanRequest(row pgx.Row) (*domain.AccessRequest, error) {
	var a domain.AccessRequest
	err := row.Scan(
		&a.ID, &a.PropertyID, &a.RequesterEmail, &a.RequesterPhone, &a.RequesterName,
		&a.AccessCodeEntered, &a.VerificationToken, &a.Status,
		&a.IPAddress, &a.UserAgent, &a.LocationData, &a.LocationVerified,
		&a.CreatedAt, &a.ExpiresAt, &a.ApprovedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accessRequestRepo) Create(ctx context.Context, req *domain.AccessRequest) (*domain.AccessRequest, error) {
	const q = `INSERT INTO access_requests (
		property_id, requester_email, requester_phone, requester_name,
		access_code_entered, verification_token, status,
		ip_address, user_agent, location_data, location_verified, expires_at
	) VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,$8,$9,$10,$11)
	RETURNING ` + requestCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	created, err := scanRequest(r.pool.QueryRow(ctx, q,
		req.PropertyID, req.RequesterEmail, req.RequesterPhone, req.RequesterName,
		req.AccessCodeEntered, req.VerificationToken,
		req.IPAddress, req.UserAgent, req.LocationData, req.LocationVerified, req.ExpiresAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePending
		}
		return nil, err
	}
	return created, nil
}

func (r *accessRequestRepo) GetByID(ctx context.Context, id int64) (*domain.AccessRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM access_requests WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanRequest(r.pool.QueryRow(ctx, q, id))
}

func (r *accessRequestRepo) GetByToken(ctx context.Context, token string) (*domain.AccessRequest, error) {
	const q = `SELECT ` + requestCols + ` FROM access_requests WHERE verification_token=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanRequest(r.pool.QueryRow(ctx, q, token))
}

func (r *accessRequestRepo) HasPending(ctx context.Context, propertyID int64, phone, email string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM access_requests
		WHERE property_id=$1 AND requester_phone=$2 AND requester_email=$3 AND status='pending'
	)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, propertyID, phone, email).Scan(&exists)
	return exists, err
}

func (r *accessRequestRepo) Decide(ctx context.Context, id int64, token string, status domain.RequestStatus) (*domain.AccessRequest, error) {
	const q = `UPDATE access_requests
SET status=$3,
    approved_at = CASE WHEN $3 = 'approved' THEN now() ELSE approved_at END
WHERE id=$1 AND verification_token=$2 AND status IN ('pending','verified')
RETURNING ` + requestCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanRequest(r.pool.QueryRow(ctx, q, id, token, status))
}

func (r *accessRequestRepo) MarkVerified(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE access_requests SET status='verified' WHERE id=$1 AND status='pending'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *accessRequestRepo) MarkExpired(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE access_requests SET status='expired' WHERE id=$1 AND status='pending'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *accessRequestRepo) ExpireStale(ctx context.Context) (int64, error) {
	const q = `UPDATE access_requests SET status='expired' WHERE status='pending' AND expires_at < now()`
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *accessRequestRepo) ListPendingByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.AccessRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + requestColsPrefixed + `
FROM access_requests ar
JOIN properties p ON p.id = ar.property_id
WHERE p.user_id=$1 AND ar.status='pending' AND ar.expires_at > now()
ORDER BY ar.created_at DESC
LIMIT $2 OFFSET $3`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.AccessRequest
	for rows.Next() {
		var a domain.AccessRequest
		if err := rows.Scan(
			&a.ID, &a.PropertyID, &a.RequesterEmail, &a.RequesterPhone, &a.RequesterName,
			&a.AccessCodeEntered, &a.VerificationToken, &a.Status,
			&a.IPAddress, &a.UserAgent, &a.LocationData, &a.LocationVerified,
			&a.CreatedAt, &a.ExpiresAt, &a.ApprovedAt,
		); err != nil {
			return nil, err
		}
		requests = append(requests, a)
	}
	return requests, rows.Err()
}

const requestColsPrefixed = `ar.id, ar.property_id, ar.requester_email, ar.requester_phone, ar.requester_name,
ar.access_code_entered, ar.verification_token, ar.status,
ar.ip_address, ar.user_agent, ar.location_data, ar.location_verified,
ar.created_at, ar.expires_at, ar.approved_at`
