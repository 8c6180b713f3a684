package repository

import (
	"context"
	"database/sql"
	"fmt"

	"zerosync/internal/domain"
)

// PostgresProductKeysRepository product_keys access for one database.
type PostgresProductKeysRepository struct {
	db   *sql.DB
	name string
}

func NewPostgresProductKeysRepository(db *sql.DB, name string) *PostgresProductKeysRepository {
	return &PostgresProductKeysRepository{db: db, name: name}
}

var _ ProductKeysRepository = (*PostgresProductKeysRepository)(nil)

// Upsert inserts or refreshes one activation key. The hard uniqueness
// constraint on (computername, productkey_new) carries the conflict target.
func (r *PostgresProductKeysRepository) Upsert(ctx context.Context, key *domain.ProductKey) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO product_keys
			(computername, windowsos_new, productkey_new, serialnumber,
			 status, created_at, activation_date, last_check_date, is_current)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, true)
		ON CONFLICT (computername, productkey_new) DO UPDATE
		SET windowsos_new = EXCLUDED.windowsos_new,
		    serialnumber = EXCLUDED.serialnumber,
		    status = EXCLUDED.status,
		    created_at = EXCLUDED.created_at,
		    activation_date = EXCLUDED.activation_date,
		    last_check_date = EXCLUDED.last_check_date,
		    is_current = true
		RETURNING (xmax = 0)`,
		key.ComputerName, key.WindowsOS, key.ProductKey, key.SerialNumber,
		key.Status, key.CreatedAt, key.ActivationAt, key.LastCheckedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("%s: failed to upsert product key for %s: %w", r.name, key.ComputerName, err)
	}
	return inserted, nil
}

func (r *PostgresProductKeysRepository) ExistingKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT productkey_new FROM product_keys`)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load product keys: %w", r.name, err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%s: failed to scan product key: %w", r.name, err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

func (r *PostgresProductKeysRepository) ListRecent(ctx context.Context, limit int) ([]*domain.ProductKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(computername, ''), COALESCE(windowsos_new, ''),
		       productkey_new, COALESCE(serialnumber, ''), COALESCE(status, ''),
		       created_at, activation_date, last_check_date, is_current
		FROM product_keys
		ORDER BY created_at DESC NULLS LAST
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list product keys: %w", r.name, err)
	}
	defer rows.Close()

	var keys []*domain.ProductKey
	for rows.Next() {
		key := &domain.ProductKey{}
		var created, activated, checked sql.NullTime
		err := rows.Scan(&key.ID, &key.ComputerName, &key.WindowsOS,
			&key.ProductKey, &key.SerialNumber, &key.Status,
			&created, &activated, &checked, &key.IsCurrent)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan product key row: %w", r.name, err)
		}
		if created.Valid {
			key.CreatedAt = &created.Time
		}
		if activated.Valid {
			key.ActivationAt = &activated.Time
		}
		if checked.Valid {
			key.LastCheckedAt = &checked.Time
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
