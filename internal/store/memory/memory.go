// Package memory provides in-memory repository implementations used by
// tests and by development runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halallens/screener/internal/contracts"
)

// SecurityStore is an in-memory contracts.SecurityRepository
type SecurityStore struct {
	mu   sync.RWMutex
	rows map[string]*contracts.Security
}

// NewSecurityStore creates an empty security store
func NewSecurityStore() *SecurityStore {
	return &SecurityStore{rows: map[string]*contracts.Security{}}
}

func (s *SecurityStore) GetByID(_ context.Context, id string) (*contracts.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("security %s: %w", id, contracts.ErrNotFound)
	}
	cp := *sec
	return &cp, nil
}

func (s *SecurityStore) List(_ context.Context) ([]*contracts.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contracts.Security, 0, len(s.rows))
	for _, sec := range s.rows {
		cp := *sec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *SecurityStore) Save(_ context.Context, security *contracts.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *security
	s.rows[security.ID] = &cp
	return nil
}

func (s *SecurityStore) UpdateSector(_ context.Context, id, sector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("security %s: %w", id, contracts.ErrNotFound)
	}
	sec.Sector = sector
	return nil
}

// FilingStore is an in-memory contracts.FilingRepository
type FilingStore struct {
	mu        sync.RWMutex
	rows      map[string]*contracts.Filing
	processed map[string]string // filing id -> outcome
}

// NewFilingStore creates an empty filing store
func NewFilingStore() *FilingStore {
	return &FilingStore{
		rows:      map[string]*contracts.Filing{},
		processed: map[string]string{},
	}
}

func (s *FilingStore) GetByID(_ context.Context, id string) (*contracts.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("filing %s: %w", id, contracts.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

func (s *FilingStore) GetPending(_ context.Context, limit int) ([]*contracts.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*contracts.Filing
	for id, f := range s.rows {
		if _, done := s.processed[id]; done {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.Before(out[j].IngestedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FilingStore) Save(_ context.Context, filing *contracts.Filing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *filing
	s.rows[filing.ID] = &cp
	return nil
}

func (s *FilingStore) MarkProcessed(_ context.Context, filingID string, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[filingID]; !ok {
		return fmt.Errorf("filing %s: %w", filingID, contracts.ErrNotFound)
	}
	s.processed[filingID] = outcome
	return nil
}

// Outcome reports the recorded processing outcome for a filing
func (s *FilingStore) Outcome(filingID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outcome, ok := s.processed[filingID]
	return outcome, ok
}

// FactStore is an in-memory contracts.FactRepository
type FactStore struct {
	mu   sync.RWMutex
	rows map[string]map[contracts.Metric]contracts.Fact // filing id -> metric -> fact
}

// NewFactStore creates an empty fact store
func NewFactStore() *FactStore {
	return &FactStore{rows: map[string]map[contracts.Metric]contracts.Fact{}}
}

func (s *FactStore) GetByFiling(_ context.Context, filingID string) ([]contracts.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byMetric := s.rows[filingID]
	out := make([]contracts.Fact, 0, len(byMetric))
	for _, f := range byMetric {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}

func (s *FactStore) SaveBatch(_ context.Context, facts []contracts.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		byMetric, ok := s.rows[f.FilingID]
		if !ok {
			byMetric = map[contracts.Metric]contracts.Fact{}
			s.rows[f.FilingID] = byMetric
		}
		byMetric[f.Metric] = f
	}
	return nil
}

// VerdictStore is an in-memory contracts.VerdictRepository
type VerdictStore struct {
	mu   sync.RWMutex
	rows map[string][]*contracts.Verdict // security id -> ordered verdicts
}

// NewVerdictStore creates an empty verdict store
func NewVerdictStore() *VerdictStore {
	return &VerdictStore{rows: map[string][]*contracts.Verdict{}}
}

func (s *VerdictStore) Append(_ context.Context, verdict *contracts.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *verdict
	rows := append(s.rows[verdict.SecurityID], &cp)
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].PeriodEnd.Equal(rows[j].PeriodEnd) {
			return rows[i].PeriodEnd.Before(rows[j].PeriodEnd)
		}
		return rows[i].ComputedAt.Before(rows[j].ComputedAt)
	})
	s.rows[verdict.SecurityID] = rows
	return nil
}

func (s *VerdictStore) ListBySecurity(_ context.Context, securityID string) ([]*contracts.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyVerdicts(s.rows[securityID]), nil
}

func (s *VerdictStore) ListRange(_ context.Context, securityID string, from, to time.Time) ([]*contracts.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*contracts.Verdict
	for _, v := range s.rows[securityID] {
		if v.PeriodEnd.Before(from) || v.PeriodEnd.After(to) {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (s *VerdictStore) LatestAsOf(_ context.Context, securityID string, date time.Time) (*contracts.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[securityID]
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].PeriodEnd.After(date) {
			cp := *rows[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func copyVerdicts(rows []*contracts.Verdict) []*contracts.Verdict {
	out := make([]*contracts.Verdict, 0, len(rows))
	for _, v := range rows {
		cp := *v
		out = append(out, &cp)
	}
	return out
}

// AlertStore is an in-memory contracts.AlertRepository. CreateIfAbsent
// holds the store lock across check and insert, matching the atomic
// transaction the Postgres implementation uses.
type AlertStore struct {
	mu   sync.Mutex
	rows map[string]*contracts.AlertRecord // dedup key -> record
}

// NewAlertStore creates an empty alert store
func NewAlertStore() *AlertStore {
	return &AlertStore{rows: map[string]*contracts.AlertRecord{}}
}

func (s *AlertStore) CreateIfAbsent(_ context.Context, record *contracts.AlertRecord) (*contracts.AlertRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := record.Transition().Key()
	if existing, ok := s.rows[key]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *record
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	s.rows[key] = &cp
	out := cp
	return &out, true, nil
}

func (s *AlertStore) UpdateState(_ context.Context, id string, state contracts.AlertState, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			r.State = state
			r.Attempts = attempts
			if state == contracts.AlertDispatched {
				r.DispatchedAt = time.Now().UTC()
			}
			return nil
		}
	}
	return fmt.Errorf("alert %s: %w", id, contracts.ErrNotFound)
}

func (s *AlertStore) MarkSuperseded(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for _, r := range s.rows {
		if want[r.ID] {
			r.State = contracts.AlertSuperseded
		}
	}
	return nil
}

func (s *AlertStore) ListBySecurity(_ context.Context, securityID string) ([]*contracts.AlertRecord, error) {
	return s.ListBySecuritySince(context.Background(), securityID, time.Time{})
}

func (s *AlertStore) ListBySecuritySince(_ context.Context, securityID string, since time.Time) ([]*contracts.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*contracts.AlertRecord
	for _, r := range s.rows {
		if r.SecurityID != securityID || r.EffectiveDate.Before(since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveDate.Before(out[j].EffectiveDate)
	})
	return out, nil
}
