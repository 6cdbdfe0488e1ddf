package contracts

import (
	"context"
	"time"
)

// Repository interfaces are defined here and implemented by
// internal/store (Postgres) and internal/store/memory (tests, dev).

// SecurityRepository manages the security master
type SecurityRepository interface {
	GetByID(ctx context.Context, id string) (*Security, error)
	List(ctx context.Context) ([]*Security, error)
	Save(ctx context.Context, security *Security) error
	// UpdateSector applies an administrative sector correction.
	UpdateSector(ctx context.Context, id, sector string) error
}

// FilingRepository manages ingested filings
type FilingRepository interface {
	GetByID(ctx context.Context, id string) (*Filing, error)
	GetPending(ctx context.Context, limit int) ([]*Filing, error)
	Save(ctx context.Context, filing *Filing) error
	MarkProcessed(ctx context.Context, filingID string, outcome string) error
}

// FactRepository manages extracted facts, keyed by (filing, metric).
// SaveBatch upserts: re-extraction wins.
type FactRepository interface {
	GetByFiling(ctx context.Context, filingID string) ([]Fact, error)
	SaveBatch(ctx context.Context, facts []Fact) error
}

// VerdictRepository is the append-only verdict store backing the
// compliance ledger. Listings are ordered by period-end, then
// computed-at.
type VerdictRepository interface {
	Append(ctx context.Context, verdict *Verdict) error
	ListBySecurity(ctx context.Context, securityID string) ([]*Verdict, error)
	ListRange(ctx context.Context, securityID string, from, to time.Time) ([]*Verdict, error)
	LatestAsOf(ctx context.Context, securityID string, date time.Time) (*Verdict, error)
}

// AlertRepository manages alert dispatch records. CreateIfAbsent is
// the idempotency gate: the check and insert execute atomically.
type AlertRepository interface {
	// CreateIfAbsent inserts the record unless one already exists for
	// the same (security, from, to, effective date). Returns the
	// stored record and whether this call created it.
	CreateIfAbsent(ctx context.Context, record *AlertRecord) (*AlertRecord, bool, error)
	UpdateState(ctx context.Context, id string, state AlertState, attempts int) error
	// MarkSuperseded flags records invalidated by a ledger backfill.
	// Superseded records are never deleted.
	MarkSuperseded(ctx context.Context, ids []string) error
	ListBySecurity(ctx context.Context, securityID string) ([]*AlertRecord, error)
	ListBySecuritySince(ctx context.Context, securityID string, since time.Time) ([]*AlertRecord, error)
}
