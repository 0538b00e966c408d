package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mysafehouse/access-api/internal/domain"
)

type PropertyRepo interface {
	GetByID(ctx context.Context, id int64) (*domain.Property, error)
	GetOwnerProfile(ctx context.Context, ownerID int64) (*domain.Profile, error)
	OwnsProperty(ctx context.Context, ownerID, propertyID int64) (bool, error)
}

type propertyRepo struct {
	pool *pgxpool.Pool
}

func NewPropertyRepo(pool *pgxpool.Pool) PropertyRepo {
	return &propertyRepo{pool: pool}
}

const propertyCols = `id, user_id, property_name, address, city, state, postal_code,
latitude, longitude, emergency_access_enabled,
keysafe_location, keysafe_code, what3words`

func (r *propertyRepo) GetByID(ctx context.Context, id int64) (*domain.Property, error) {
	const q = `SELECT ` + propertyCols + ` FROM properties WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.Property
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Address, &p.City, &p.State, &p.PostalCode,
		&p.Latitude, &p.Longitude, &p.EmergencyAccessEnabled,
		&p.KeysafeLocation, &p.KeysafeCode, &p.What3Words,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *propertyRepo) GetOwnerProfile(ctx context.Context, ownerID int64) (*domain.Profile, error) {
	const q = `SELECT id, email, phone, full_name FROM profiles WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.Profile
	err := r.pool.QueryRow(ctx, q, ownerID).Scan(&p.ID, &p.Email, &p.Phone, &p.Name)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *propertyRepo) OwnsProperty(ctx context.Context, ownerID, propertyID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM properties WHERE id=$1 AND user_id=$2)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var ok bool
	err := r.pool.QueryRow(ctx, q, propertyID, ownerID).Scan(&ok)
	return ok, err
}
