package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halallens/screener/internal/contracts"
)

// FactRepository handles persistence for extracted facts, keyed by
// (filing, metric). Re-extraction upserts: the latest run wins.
type FactRepository struct {
	db *pgxpool.Pool
}

// NewFactRepository creates a new FactRepository instance
func NewFactRepository(db *pgxpool.Pool) *FactRepository {
	return &FactRepository{db: db}
}

// GetByFiling returns the facts extracted from one filing
func (r *FactRepository) GetByFiling(ctx context.Context, filingID string) ([]contracts.Fact, error) {
	query := `
		SELECT
			filing_id,
			metric,
			value,
			currency,
			confidence,
			low_confidence,
			locator,
			extracted_at
		FROM screening.facts
		WHERE filing_id = $1
		ORDER BY metric ASC
	`

	rows, err := r.db.Query(ctx, query, filingID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []contracts.Fact
	for rows.Next() {
		var f contracts.Fact
		var metric string
		err := rows.Scan(
			&f.FilingID,
			&metric,
			&f.Value,
			&f.Currency,
			&f.Confidence,
			&f.LowConfidence,
			&f.Locator,
			&f.ExtractedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Metric = contracts.Metric(metric)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return out, nil
}

// SaveBatch upserts a batch of facts in one round trip
func (r *FactRepository) SaveBatch(ctx context.Context, facts []contracts.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	query := `
		INSERT INTO screening.facts (
			filing_id,
			metric,
			value,
			currency,
			confidence,
			low_confidence,
			locator,
			extracted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (filing_id, metric) DO UPDATE SET
			value = EXCLUDED.value,
			currency = EXCLUDED.currency,
			confidence = EXCLUDED.confidence,
			low_confidence = EXCLUDED.low_confidence,
			locator = EXCLUDED.locator,
			extracted_at = EXCLUDED.extracted_at
	`

	batch := &pgx.Batch{}
	for _, f := range facts {
		batch.Queue(query,
			f.FilingID,
			string(f.Metric),
			f.Value,
			f.Currency,
			f.Confidence,
			f.LowConfidence,
			f.Locator,
			f.ExtractedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range facts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert fact: %w", err)
		}
	}
	return nil
}
