package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halallens/screener/internal/contracts"
)

// FilingRepository handles persistence for ingested filings
type FilingRepository struct {
	db *pgxpool.Pool
}

// NewFilingRepository creates a new FilingRepository instance
func NewFilingRepository(db *pgxpool.Pool) *FilingRepository {
	return &FilingRepository{db: db}
}

const filingColumns = `
	id,
	security_id,
	filing_type,
	period_end,
	ingested_at,
	format,
	document_key,
	currency,
	scale,
	headline,
	meta
`

// GetByID loads one filing
func (r *FilingRepository) GetByID(ctx context.Context, id string) (*contracts.Filing, error) {
	query := `
		SELECT ` + filingColumns + `
		FROM screening.filings
		WHERE id = $1
	`

	f, err := scanFiling(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("filing %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query filing: %w", err)
	}
	return f, nil
}

// GetPending returns unprocessed filings, oldest ingested first
func (r *FilingRepository) GetPending(ctx context.Context, limit int) ([]*contracts.Filing, error) {
	query := `
		SELECT ` + filingColumns + `
		FROM screening.filings
		WHERE outcome IS NULL
		ORDER BY ingested_at ASC, id ASC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending filings: %w", err)
	}
	defer rows.Close()

	var out []*contracts.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filings: %w", err)
	}
	return out, nil
}

// Save upserts one filing by id. Re-saving resets the processing
// outcome so the filing becomes pending again.
func (r *FilingRepository) Save(ctx context.Context, filing *contracts.Filing) error {
	metaJSON, err := json.Marshal(filing.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		INSERT INTO screening.filings (
			id,
			security_id,
			filing_type,
			period_end,
			ingested_at,
			format,
			document_key,
			currency,
			scale,
			headline,
			meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			format = EXCLUDED.format,
			document_key = EXCLUDED.document_key,
			currency = EXCLUDED.currency,
			scale = EXCLUDED.scale,
			headline = EXCLUDED.headline,
			meta = EXCLUDED.meta,
			outcome = NULL
	`

	_, err = r.db.Exec(ctx, query,
		filing.ID,
		filing.SecurityID,
		string(filing.Type),
		filing.PeriodEnd,
		filing.IngestedAt,
		string(filing.Format),
		filing.DocumentKey,
		filing.Currency,
		filing.Scale,
		filing.Headline,
		metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert filing: %w", err)
	}
	return nil
}

// MarkProcessed records the pipeline outcome for a filing
func (r *FilingRepository) MarkProcessed(ctx context.Context, filingID string, outcome string) error {
	query := `
		UPDATE screening.filings
		SET outcome = $2,
		    processed_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, filingID, outcome)
	if err != nil {
		return fmt.Errorf("mark filing processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("filing %s: %w", filingID, contracts.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiling(row rowScanner) (*contracts.Filing, error) {
	f := &contracts.Filing{}
	var filingType, format string
	var metaJSON []byte

	err := row.Scan(
		&f.ID,
		&f.SecurityID,
		&filingType,
		&f.PeriodEnd,
		&f.IngestedAt,
		&format,
		&f.DocumentKey,
		&f.Currency,
		&f.Scale,
		&f.Headline,
		&metaJSON,
	)
	if err != nil {
		return nil, err
	}

	f.Type = contracts.FilingType(filingType)
	f.Format = contracts.SourceFormat(format)
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &f.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	return f, nil
}
