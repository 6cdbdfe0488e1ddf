package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halallens/screener/internal/contracts"
)

// Repository is the Postgres-backed verdict store. The table is
// append-only: corrected screenings insert a new row for the same
// (security, period) and listings order by period_end, computed_at.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Append inserts one verdict row
func (r *Repository) Append(ctx context.Context, verdict *contracts.Verdict) error {
	ratiosJSON, err := json.Marshal(verdict.Ratios)
	if err != nil {
		return fmt.Errorf("marshal ratios: %w", err)
	}
	thresholdsJSON, err := json.Marshal(verdict.Thresholds)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	citationsJSON, err := json.Marshal(verdict.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	query := `
		INSERT INTO screening.verdicts (
			security_id,
			period_end,
			status,
			ratios,
			thresholds,
			missing,
			violated,
			citations,
			filing_id,
			computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.Exec(ctx, query,
		verdict.SecurityID,
		verdict.PeriodEnd,
		string(verdict.Status),
		ratiosJSON,
		thresholdsJSON,
		verdict.Missing,
		verdict.Violated,
		citationsJSON,
		verdict.FilingID,
		verdict.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}

	return nil
}

const verdictColumns = `
	security_id,
	period_end,
	status,
	ratios,
	thresholds,
	missing,
	violated,
	citations,
	filing_id,
	computed_at
`

// ListBySecurity returns the full verdict history for a security
func (r *Repository) ListBySecurity(ctx context.Context, securityID string) ([]*contracts.Verdict, error) {
	query := `
		SELECT ` + verdictColumns + `
		FROM screening.verdicts
		WHERE security_id = $1
		ORDER BY period_end ASC, computed_at ASC
	`

	rows, err := r.db.Query(ctx, query, securityID)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer rows.Close()

	return scanVerdicts(rows)
}

// ListRange returns verdicts whose period-end falls within [from, to]
func (r *Repository) ListRange(ctx context.Context, securityID string, from, to time.Time) ([]*contracts.Verdict, error) {
	query := `
		SELECT ` + verdictColumns + `
		FROM screening.verdicts
		WHERE security_id = $1
		  AND period_end >= $2
		  AND period_end <= $3
		ORDER BY period_end ASC, computed_at ASC
	`

	rows, err := r.db.Query(ctx, query, securityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query verdict range: %w", err)
	}
	defer rows.Close()

	return scanVerdicts(rows)
}

// LatestAsOf returns the effective verdict on a date: latest
// period_end at or before it, ties broken by computed_at. Returns nil
// when the ledger holds nothing that early.
func (r *Repository) LatestAsOf(ctx context.Context, securityID string, date time.Time) (*contracts.Verdict, error) {
	query := `
		SELECT ` + verdictColumns + `
		FROM screening.verdicts
		WHERE security_id = $1
		  AND period_end <= $2
		ORDER BY period_end DESC, computed_at DESC
		LIMIT 1
	`

	row := r.db.QueryRow(ctx, query, securityID, date)
	v, err := scanVerdict(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query verdict as of: %w", err)
	}
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerdict(row rowScanner) (*contracts.Verdict, error) {
	v := &contracts.Verdict{}
	var status string
	var ratiosJSON, thresholdsJSON, citationsJSON []byte

	err := row.Scan(
		&v.SecurityID,
		&v.PeriodEnd,
		&status,
		&ratiosJSON,
		&thresholdsJSON,
		&v.Missing,
		&v.Violated,
		&citationsJSON,
		&v.FilingID,
		&v.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Status = contracts.Status(status)
	if err := json.Unmarshal(ratiosJSON, &v.Ratios); err != nil {
		return nil, fmt.Errorf("unmarshal ratios: %w", err)
	}
	if err := json.Unmarshal(thresholdsJSON, &v.Thresholds); err != nil {
		return nil, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	if len(citationsJSON) > 0 {
		if err := json.Unmarshal(citationsJSON, &v.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
	}
	return v, nil
}

func scanVerdicts(rows pgx.Rows) ([]*contracts.Verdict, error) {
	var out []*contracts.Verdict
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return out, nil
}
