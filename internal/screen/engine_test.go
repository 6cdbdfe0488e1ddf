package screen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

func newTestEngine() *Engine {
	cfg := config.ScreeningConfig{
		DebtRatioCap:            0.30,
		NonPermissibleIncomeCap: 0.05,
		IlliquidAssetsCap:       0.30,
	}
	log := logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"})
	return NewEngine(cfg, log)
}

func testSecurity() *contracts.Security {
	return &contracts.Security{
		ID:       "BSE:500325",
		Exchange: "BSE",
		Symbol:   "500325",
		Currency: "INR",
		Sector:   "energy",
	}
}

func screenFiling() *contracts.Filing {
	return &contracts.Filing{
		ID:         "filing-1",
		SecurityID: "BSE:500325",
		PeriodEnd:  time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func makeFacts(values map[contracts.Metric]float64) []contracts.Fact {
	var out []contracts.Fact
	for metric, v := range values {
		out = append(out, contracts.Fact{
			FilingID: "filing-1",
			Metric:   metric,
			Value:    v,
			Currency: "INR",
			Locator:  "line:1",
		})
	}
	return out
}

func baseFacts() map[contracts.Metric]float64 {
	return map[contracts.Metric]float64{
		contracts.MetricTotalDebt:            25,
		contracts.MetricMarketCap:            100,
		contracts.MetricNonPermissibleIncome: 3,
		contracts.MetricTotalRevenue:         100,
		contracts.MetricCashEquivalents:      20,
	}
}

func ratioByName(v *contracts.Verdict, name string) contracts.RatioResult {
	for _, r := range v.Ratios {
		if r.Name == name {
			return r
		}
	}
	return contracts.RatioResult{}
}

func TestScreenCompliant(t *testing.T) {
	e := newTestEngine()

	v := e.Screen(testSecurity(), screenFiling(), makeFacts(baseFacts()))

	assert.Equal(t, contracts.StatusCompliant, v.Status)
	assert.Empty(t, v.Violated)
	assert.Empty(t, v.Missing)
	require.Len(t, v.Ratios, 3)

	assert.InDelta(t, 0.25, ratioByName(v, contracts.RatioDebt).Value, 1e-9)
	assert.InDelta(t, 0.03, ratioByName(v, contracts.RatioNonPermissibleIncome).Value, 1e-9)
	assert.InDelta(t, 0.20, ratioByName(v, contracts.RatioIlliquidAssets).Value, 1e-9)

	// threshold snapshot travels with the verdict
	assert.Equal(t, 0.30, v.Thresholds.DebtRatioCap)
	assert.Len(t, v.Citations, 5)
}

func TestScreenDebtViolation(t *testing.T) {
	e := newTestEngine()

	facts := baseFacts()
	facts[contracts.MetricTotalDebt] = 35

	v := e.Screen(testSecurity(), screenFiling(), makeFacts(facts))

	assert.Equal(t, contracts.StatusNonCompliant, v.Status)
	assert.Equal(t, []string{contracts.RatioDebt}, v.Violated)
}

func TestScreenCapIsExclusive(t *testing.T) {
	e := newTestEngine()

	// exactly at the cap is a violation: ratios must be strictly below
	facts := baseFacts()
	facts[contracts.MetricTotalDebt] = 30

	v := e.Screen(testSecurity(), screenFiling(), makeFacts(facts))

	assert.Equal(t, contracts.StatusNonCompliant, v.Status)
	assert.Equal(t, []string{contracts.RatioDebt}, v.Violated)
}

func TestScreenMissingMetric(t *testing.T) {
	e := newTestEngine()

	facts := baseFacts()
	delete(facts, contracts.MetricNonPermissibleIncome)

	v := e.Screen(testSecurity(), screenFiling(), makeFacts(facts))

	assert.Equal(t, contracts.StatusInsufficientData, v.Status)
	assert.Equal(t, []string{string(contracts.MetricNonPermissibleIncome)}, v.Missing)
	assert.Empty(t, v.Violated)
	assert.Empty(t, v.Ratios)
}

func TestScreenZeroDenominator(t *testing.T) {
	e := newTestEngine()

	facts := baseFacts()
	facts[contracts.MetricMarketCap] = 0

	v := e.Screen(testSecurity(), screenFiling(), makeFacts(facts))

	assert.Equal(t, contracts.StatusInsufficientData, v.Status)
	assert.True(t, ratioByName(v, contracts.RatioDebt).Insufficient)
	assert.True(t, ratioByName(v, contracts.RatioIlliquidAssets).Insufficient)
	assert.False(t, ratioByName(v, contracts.RatioNonPermissibleIncome).Insufficient)
}

func TestScreenInterestSecuritiesAdditive(t *testing.T) {
	e := newTestEngine()

	facts := baseFacts()
	facts[contracts.MetricInterestSecurities] = 15

	v := e.Screen(testSecurity(), screenFiling(), makeFacts(facts))

	// (20 cash + 15 securities) / 100 breaches the 0.30 cap
	assert.Equal(t, contracts.StatusNonCompliant, v.Status)
	assert.Equal(t, []string{contracts.RatioIlliquidAssets}, v.Violated)
	assert.InDelta(t, 0.35, ratioByName(v, contracts.RatioIlliquidAssets).Value, 1e-9)
}

func TestScreenSectorOverride(t *testing.T) {
	e := newTestEngine()
	e.SetSectorCap("energy", 0.15)

	v := e.Screen(testSecurity(), screenFiling(), makeFacts(baseFacts()))

	// cash 20 / market cap 100 = 0.20 breaches the sector cap of 0.15
	assert.Equal(t, contracts.StatusNonCompliant, v.Status)
	assert.Equal(t, []string{contracts.RatioIlliquidAssets}, v.Violated)
	assert.Equal(t, 0.15, v.Thresholds.IlliquidAssetsCap)
}

func TestScreenDeterministic(t *testing.T) {
	e := newTestEngine()
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	a := e.Screen(testSecurity(), screenFiling(), makeFacts(baseFacts()))
	b := e.Screen(testSecurity(), screenFiling(), makeFacts(baseFacts()))

	assert.Equal(t, a, b)
}

func TestReevaluate(t *testing.T) {
	e := newTestEngine()

	for _, facts := range []map[contracts.Metric]float64{
		baseFacts(),
		{
			contracts.MetricTotalDebt:            35,
			contracts.MetricMarketCap:            100,
			contracts.MetricNonPermissibleIncome: 3,
			contracts.MetricTotalRevenue:         100,
			contracts.MetricCashEquivalents:      20,
		},
	} {
		v := e.Screen(testSecurity(), screenFiling(), makeFacts(facts))
		assert.Equal(t, v.Status, Reevaluate(v), "stored verdict must reproduce its status")
	}

	missing := baseFacts()
	delete(missing, contracts.MetricMarketCap)
	v := e.Screen(testSecurity(), screenFiling(), makeFacts(missing))
	assert.Equal(t, contracts.StatusInsufficientData, Reevaluate(v))
}
