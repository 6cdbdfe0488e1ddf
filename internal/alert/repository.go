package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halallens/screener/internal/contracts"
)

// Repository is the Postgres-backed alert record store. The unique
// index on (security_id, from_status, to_status, effective_date) makes
// CreateIfAbsent atomic under concurrent dispatch.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIfAbsent inserts the record unless the transition was already
// dispatched. ON CONFLICT DO NOTHING plus a follow-up read keeps the
// check-and-insert race-free without an explicit transaction.
func (r *Repository) CreateIfAbsent(ctx context.Context, record *contracts.AlertRecord) (*contracts.AlertRecord, bool, error) {
	query := `
		INSERT INTO screening.alert_records (
			id,
			security_id,
			from_status,
			to_status,
			effective_date,
			state,
			request_id,
			attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (security_id, from_status, to_status, effective_date) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		record.ID,
		record.SecurityID,
		string(record.From),
		string(record.To),
		record.EffectiveDate,
		string(record.State),
		record.RequestID,
		record.Attempts,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert alert record: %w", err)
	}

	if tag.RowsAffected() == 1 {
		cp := *record
		return &cp, true, nil
	}

	existing, err := r.getByTransition(ctx, record.Transition())
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// UpdateState records a delivery outcome
func (r *Repository) UpdateState(ctx context.Context, id string, state contracts.AlertState, attempts int) error {
	query := `
		UPDATE screening.alert_records
		SET state = $2,
		    attempts = $3,
		    dispatched_at = CASE WHEN $2 = 'dispatched' THEN NOW() ELSE dispatched_at END
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, string(state), attempts)
	if err != nil {
		return fmt.Errorf("update alert state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", id, contracts.ErrNotFound)
	}
	return nil
}

// MarkSuperseded flags records invalidated by a ledger backfill
func (r *Repository) MarkSuperseded(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE screening.alert_records
		SET state = 'superseded'
		WHERE id = ANY($1)
	`

	if _, err := r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("supersede alert records: %w", err)
	}
	return nil
}

const alertColumns = `
	id,
	security_id,
	from_status,
	to_status,
	effective_date,
	state,
	request_id,
	attempts,
	COALESCE(dispatched_at, 'epoch'::timestamptz)
`

// ListBySecurity returns all alert records for a security
func (r *Repository) ListBySecurity(ctx context.Context, securityID string) ([]*contracts.AlertRecord, error) {
	return r.ListBySecuritySince(ctx, securityID, time.Time{})
}

// ListBySecuritySince returns alert records effective on or after a date
func (r *Repository) ListBySecuritySince(ctx context.Context, securityID string, since time.Time) ([]*contracts.AlertRecord, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM screening.alert_records
		WHERE security_id = $1
		  AND effective_date >= $2
		ORDER BY effective_date ASC
	`

	rows, err := r.db.Query(ctx, query, securityID, since)
	if err != nil {
		return nil, fmt.Errorf("query alert records: %w", err)
	}
	defer rows.Close()

	var out []*contracts.AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert records: %w", err)
	}
	return out, nil
}

func (r *Repository) getByTransition(ctx context.Context, t contracts.Transition) (*contracts.AlertRecord, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM screening.alert_records
		WHERE security_id = $1
		  AND from_status = $2
		  AND to_status = $3
		  AND effective_date = $4
	`

	row := r.db.QueryRow(ctx, query, t.SecurityID, string(t.From), string(t.To), t.EffectiveDate)
	rec, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("alert for %s: %w", t.Key(), contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query alert record: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*contracts.AlertRecord, error) {
	rec := &contracts.AlertRecord{}
	var from, to, state string

	err := row.Scan(
		&rec.ID,
		&rec.SecurityID,
		&from,
		&to,
		&rec.EffectiveDate,
		&state,
		&rec.RequestID,
		&rec.Attempts,
		&rec.DispatchedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.From = contracts.Status(from)
	rec.To = contracts.Status(to)
	rec.State = contracts.AlertState(state)
	return rec, nil
}
