package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mysafehouse/access-api/internal/domain"
)

// DomainRuleRepo reads and writes the allow/block lists. The two lists live
// in independent tables mirroring the original schema.
type DomainRuleRepo interface {
	GetActiveAllow(ctx context.Context, dom string) (*domain.DomainRule, error)
	GetActiveBlock(ctx context.Context, dom string) (*domain.DomainRule, error)
	InsertAllow(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error)
	InsertBlock(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error)
	UpdateAllow(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error)
	UpdateBlock(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error)
	DeleteAllow(ctx context.Context, id int64) (bool, error)
	DeleteBlock(ctx context.Context, id int64) (bool, error)
	ListAllow(ctx context.Context, limit, offset int) ([]domain.DomainRule, error)
	ListBlock(ctx context.Context, limit, offset int) ([]domain.DomainRule, error)
}

type domainRuleRepo struct {
	pool *pgxpool.Pool
}

func NewDomainRuleRepo(pool *pgxpool.Pool) DomainRuleRepo {
	return &domainRuleRepo{pool: pool}
}

const ruleCols = `id, domain, COALESCE(reason,''), is_active, expires_at, created_by, created_at`

func scanRule(row pgx.Row) (*domain.DomainRule, error) {
	var d domain.DomainRule
	err := row.Scan(&d.ID, &d.Domain, &d.Reason, &d.IsActive, &d.ExpiresAt, &d.CreatedBy, &d.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *domainRuleRepo) getActive(ctx context.Context, table, dom string) (*domain.DomainRule, error) {
	q := `SELECT ` + ruleCols + ` FROM ` + table + ` WHERE domain=lower($1) AND is_active=true ORDER BY created_at DESC LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanRule(r.pool.QueryRow(ctx, q, dom))
}

func (r *domainRuleRepo) GetActiveAllow(ctx context.Context, dom string) (*domain.DomainRule, error) {
	return r.getActive(ctx, "allowed_domains", dom)
}

func (r *domainRuleRepo) GetActiveBlock(ctx context.Context, dom string) (*domain.DomainRule, error) {
	return r.getActive(ctx, "blocked_domains", dom)
}

func (r *domainRuleRepo) insert(ctx context.Context, table string, rule *domain.DomainRule) (*domain.DomainRule, error) {
	q := `INSERT INTO ` + table + ` (domain, reason, is_active, expires_at, created_by)
VALUES (lower($1),$2,true,$3,$4)
RETURNING ` + ruleCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanRule(r.pool.QueryRow(ctx, q, rule.Domain, rule.Reason, rule.ExpiresAt, rule.CreatedBy))
}

func (r *domainRuleRepo) InsertAllow(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error) {
	return r.insert(ctx, "allowed_domains", rule)
}

func (r *domainRuleRepo) InsertBlock(ctx context.Context, rule *domain.DomainRule) (*domain.DomainRule, error) {
	return r.insert(ctx, "blocked_domains", rule)
}

func (r *domainRuleRepo) update(ctx context.Context, table string, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	q := `UPDATE ` + table + ` SET
	domain     = COALESCE(lower($2), domain),
	reason     = COALESCE($3, reason),
	is_active  = COALESCE($4, is_active),
	expires_at = CASE WHEN $5::bool THEN NULL WHEN $6::timestamptz IS NOT NULL THEN $6 ELSE expires_at END
WHERE id = $1
RETURNING ` + ruleCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanRule(r.pool.QueryRow(ctx, q, id, upd.Domain, upd.Reason, upd.IsActive, upd.ClearExpiry, upd.ExpiresAt))
}

func (r *domainRuleRepo) UpdateAllow(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	return r.update(ctx, "allowed_domains", id, upd)
}

func (r *domainRuleRepo) UpdateBlock(ctx context.Context, id int64, upd *domain.DomainRuleUpdate) (*domain.DomainRule, error) {
	return r.update(ctx, "blocked_domains", id, upd)
}

func (r *domainRuleRepo) delete(ctx context.Context, table string, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *domainRuleRepo) DeleteAllow(ctx context.Context, id int64) (bool, error) {
	return r.delete(ctx, "allowed_domains", id)
}

func (r *domainRuleRepo) DeleteBlock(ctx context.Context, id int64) (bool, error) {
	return r.delete(ctx, "blocked_domains", id)
}

func (r *domainRuleRepo) list(ctx context.Context, table string, limit, offset int) ([]domain.DomainRule, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + ruleCols + ` FROM ` + table + ` WHERE is_active=true ORDER BY domain LIMIT $1 OFFSET $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.DomainRule
	for rows.Next() {
		var d domain.DomainRule
		if err := rows.Scan(&d.ID, &d.Domain, &d.Reason, &d.IsActive, &d.ExpiresAt, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, d)
	}
	return rules, rows.Err()
}

func (r *domainRuleRepo) ListAllow(ctx context.Context, limit, offset int) ([]domain.DomainRule, error) {
	return r.list(ctx, "allowed_domains", limit, offset)
}

func (r *domainRuleRepo) ListBlock(ctx context.Context, limit, offset int) ([]domain.DomainRule, error) {
	return r.list(ctx, "blocked_domains", limit, offset)
}
