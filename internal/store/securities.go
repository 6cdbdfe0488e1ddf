// Package store holds the Postgres repositories for the security
// master, ingested filings and extracted facts. Verdict and alert
// stores live with their domain packages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halallens/screener/internal/contracts"
)

// SecurityRepository handles persistence for the security master
type SecurityRepository struct {
	db *pgxpool.Pool
}

// NewSecurityRepository creates a new SecurityRepository instance
func NewSecurityRepository(db *pgxpool.Pool) *SecurityRepository {
	return &SecurityRepository{db: db}
}

// GetByID loads one security
func (r *SecurityRepository) GetByID(ctx context.Context, id string) (*contracts.Security, error) {
	query := `
		SELECT id, exchange, symbol, name, currency, sector
		FROM screening.securities
		WHERE id = $1
	`

	sec := &contracts.Security{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&sec.ID,
		&sec.Exchange,
		&sec.Symbol,
		&sec.Name,
		&sec.Currency,
		&sec.Sector,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("security %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query security: %w", err)
	}
	return sec, nil
}

// List returns the full security master
func (r *SecurityRepository) List(ctx context.Context) ([]*contracts.Security, error) {
	query := `
		SELECT id, exchange, symbol, name, currency, sector
		FROM screening.securities
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query securities: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Security
	for rows.Next() {
		sec := &contracts.Security{}
		if err := rows.Scan(&sec.ID, &sec.Exchange, &sec.Symbol, &sec.Name, &sec.Currency, &sec.Sector); err != nil {
			return nil, fmt.Errorf("scan security: %w", err)
		}
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate securities: %w", err)
	}
	return out, nil
}

// Save upserts one security. Identity fields never change; only the
// display name follows the upsert.
func (r *SecurityRepository) Save(ctx context.Context, security *contracts.Security) error {
	query := `
		INSERT INTO screening.securities (
			id, exchange, symbol, name, currency, sector
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
	`

	_, err := r.db.Exec(ctx, query,
		security.ID,
		security.Exchange,
		security.Symbol,
		security.Name,
		security.Currency,
		security.Sector,
	)
	if err != nil {
		return fmt.Errorf("insert security: %w", err)
	}
	return nil
}

// UpdateSector applies an administrative sector correction
func (r *SecurityRepository) UpdateSector(ctx context.Context, id, sector string) error {
	query := `
		UPDATE screening.securities
		SET sector = $2
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, sector)
	if err != nil {
		return fmt.Errorf("update sector: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("security %s: %w", id, contracts.ErrNotFound)
	}
	return nil
}
