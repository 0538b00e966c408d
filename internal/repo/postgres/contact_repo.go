package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mysafehouse/access-api/internal/domain"
)

type ContactRepo interface {
	ListPrimaryByUser(ctx context.Context, userID int64) ([]domain.Contact, error)
}

type contactRepo struct {
	pool *pgxpool.Pool
}

func NewContactRepo(pool *pgxpool.Pool) ContactRepo {
	return &contactRepo{pool: pool}
}

func (r *contactRepo) ListPrimaryByUser(ctx context.Context, userID int64) ([]domain.Contact, error) {
	const q = `SELECT id, user_id, name, COALESCE(email,''), COALESCE(phone,''), is_primary
FROM contacts
WHERE user_id=$1 AND is_primary=true AND email IS NOT NULL`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.IsPrimary); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
