package screen

import (
	"sort"
	"time"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

// Engine computes compliance verdicts from extracted facts. Screening
// is a pure function of its inputs and the configured caps, so the
// same facts always yield the same verdict.
type Engine struct {
	thresholds contracts.Thresholds
	sectorCaps map[string]float64 // sector code -> illiquid-assets cap override
	logger     *logger.Logger
	now        func() time.Time
}

// NewEngine creates an engine with the configured ratio caps
func NewEngine(cfg config.ScreeningConfig, log *logger.Logger) *Engine {
	return &Engine{
		thresholds: contracts.Thresholds{
			DebtRatioCap:            cfg.DebtRatioCap,
			NonPermissibleIncomeCap: cfg.NonPermissibleIncomeCap,
			IlliquidAssetsCap:       cfg.IlliquidAssetsCap,
		},
		sectorCaps: map[string]float64{},
		logger:     log.WithField("module", "screen"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetSectorCap overrides the illiquid-assets cap for one sector code
func (e *Engine) SetSectorCap(sector string, cap float64) {
	e.sectorCaps[sector] = cap
}

func (e *Engine) illiquidCap(sector string) float64 {
	if cap, ok := e.sectorCaps[sector]; ok {
		return cap
	}
	return e.thresholds.IlliquidAssetsCap
}

// requiredMetrics are the inputs screening cannot proceed without.
// Interest-bearing securities are additive when present and treated
// as zero when absent.
var requiredMetrics = []contracts.Metric{
	contracts.MetricTotalDebt,
	contracts.MetricMarketCap,
	contracts.MetricNonPermissibleIncome,
	contracts.MetricTotalRevenue,
	contracts.MetricCashEquivalents,
}

// Screen computes the verdict for one security and filing period. A
// missing required metric or a non-positive denominator yields
// InsufficientData with the gaps recorded; only fully computable
// ratios can produce NonCompliant.
func (e *Engine) Screen(security *contracts.Security, filing *contracts.Filing, facts []contracts.Fact) *contracts.Verdict {
	byMetric := map[contracts.Metric]contracts.Fact{}
	for _, f := range facts {
		byMetric[f.Metric] = f
	}

	thresholds := e.thresholds
	thresholds.IlliquidAssetsCap = e.illiquidCap(security.Sector)

	verdict := &contracts.Verdict{
		SecurityID: security.ID,
		PeriodEnd:  filing.PeriodEnd,
		Thresholds: thresholds,
		FilingID:   filing.ID,
		ComputedAt: e.now(),
	}

	var missing []string
	for _, m := range requiredMetrics {
		if _, ok := byMetric[m]; !ok {
			missing = append(missing, string(m))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		verdict.Status = contracts.StatusInsufficientData
		verdict.Missing = missing
		e.logVerdict(verdict)
		return verdict
	}

	debt := byMetric[contracts.MetricTotalDebt]
	marketCap := byMetric[contracts.MetricMarketCap]
	npi := byMetric[contracts.MetricNonPermissibleIncome]
	revenue := byMetric[contracts.MetricTotalRevenue]
	cash := byMetric[contracts.MetricCashEquivalents]

	illiquid := cash.Value
	if sec, ok := byMetric[contracts.MetricInterestSecurities]; ok {
		illiquid += sec.Value
	}

	verdict.Ratios = []contracts.RatioResult{
		ratio(contracts.RatioDebt, debt.Value, marketCap.Value, thresholds.DebtRatioCap),
		ratio(contracts.RatioNonPermissibleIncome, npi.Value, revenue.Value, thresholds.NonPermissibleIncomeCap),
		ratio(contracts.RatioIlliquidAssets, illiquid, marketCap.Value, thresholds.IlliquidAssetsCap),
	}

	for _, f := range []contracts.Fact{debt, marketCap, npi, revenue, cash} {
		verdict.Citations = append(verdict.Citations, contracts.Citation{
			FilingID: f.FilingID,
			Metric:   f.Metric,
			Locator:  f.Locator,
		})
	}

	verdict.Status = evaluate(verdict)
	e.logVerdict(verdict)
	return verdict
}

// ratio computes one screening ratio. A non-positive denominator makes
// the ratio insufficient rather than dividing through.
func ratio(name string, num, den, cap float64) contracts.RatioResult {
	r := contracts.RatioResult{
		Name:        name,
		Numerator:   num,
		Denominator: den,
		Cap:         cap,
	}
	if den <= 0 {
		r.Insufficient = true
		return r
	}
	r.Value = num / den
	r.Satisfied = r.Value < cap
	return r
}

// evaluate derives the status from computed ratios: any insufficient
// ratio wins over violations, any violation wins over compliance.
func evaluate(v *contracts.Verdict) contracts.Status {
	insufficient := false
	var violated []string
	for _, r := range v.Ratios {
		if r.Insufficient {
			insufficient = true
			continue
		}
		if !r.Satisfied {
			violated = append(violated, r.Name)
		}
	}
	if insufficient {
		return contracts.StatusInsufficientData
	}
	if len(violated) > 0 {
		v.Violated = violated
		return contracts.StatusNonCompliant
	}
	return contracts.StatusCompliant
}

// Reevaluate recomputes the status a stored verdict should carry from
// its own recorded figures and threshold snapshot. Used to audit that
// historical verdicts reproduce.
func Reevaluate(v *contracts.Verdict) contracts.Status {
	if len(v.Missing) > 0 {
		return contracts.StatusInsufficientData
	}
	check := &contracts.Verdict{Ratios: v.Ratios}
	return evaluate(check)
}

func (e *Engine) logVerdict(v *contracts.Verdict) {
	e.logger.WithFields(map[string]interface{}{
		"security_id": v.SecurityID,
		"period_end":  v.PeriodEnd.Format("2006-01-02"),
		"status":      v.Status.String(),
		"violated":    v.Violated,
		"missing":     v.Missing,
	}).Debug("Screening completed")
}
