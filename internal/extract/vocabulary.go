package extract

import (
	"regexp"

	"github.com/halallens/screener/internal/contracts"
)

// metricSpec maps one canonical metric to the ways it appears in
// source filings: XBRL element names for tagged documents, and
// label patterns (most specific first) for statement tables and text.
type metricSpec struct {
	metric   contracts.Metric
	required bool
	tags     []string
	patterns []*regexp.Regexp
	section  *regexp.Regexp // expected statement section header
}

var (
	sectionBalanceSheet = regexp.MustCompile(`(?i)balance\s+sheet|financial\s+position`)
	sectionProfitLoss   = regexp.MustCompile(`(?i)profit\s+(and|&)\s+loss|income\s+statement|statement\s+of\s+operations`)
	sectionMarketData   = regexp.MustCompile(`(?i)market\s+data|share\s+(price|capital)\s+information`)
)

// vocabulary is the fixed statement-line vocabulary. Order within
// patterns matters: earlier patterns are more specific and yield
// higher confidence.
var vocabulary = []metricSpec{
	{
		metric:   contracts.MetricTotalDebt,
		required: true,
		tags:     []string{"TotalDebt", "InterestBearingDebt", "Borrowings"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^total\s+(interest[- ]bearing\s+)?debt\b`),
			regexp.MustCompile(`(?i)^total\s+borrowings\b`),
			regexp.MustCompile(`(?i)^borrowings\b`),
		},
		section: sectionBalanceSheet,
	},
	{
		metric:   contracts.MetricMarketCap,
		required: true,
		tags:     []string{"MarketCapitalisation", "MarketCapitalization", "AverageMarketCap"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(average\s+)?market\s+capitali[sz]ation\b`),
			regexp.MustCompile(`(?i)^market\s+cap\b`),
		},
		section: sectionMarketData,
	},
	{
		metric:   contracts.MetricNonPermissibleIncome,
		required: true,
		tags:     []string{"NonPermissibleIncome", "OtherNonOperatingIncome"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^non[- ]permissible\s+(income|revenue)\b`),
			regexp.MustCompile(`(?i)^other\s+non[- ]operating\s+income\b`),
		},
		section: sectionProfitLoss,
	},
	{
		metric:   contracts.MetricTotalRevenue,
		required: true,
		tags:     []string{"TotalRevenue", "RevenueFromOperations", "Revenue"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^total\s+revenue\b`),
			regexp.MustCompile(`(?i)^revenue\s+from\s+operations\b`),
			regexp.MustCompile(`(?i)^total\s+income\b`),
		},
		section: sectionProfitLoss,
	},
	{
		metric:   contracts.MetricCashEquivalents,
		required: true,
		tags:     []string{"CashAndCashEquivalents", "CashEquivalents"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^cash\s+(and|&)\s+cash\s+equivalents\b`),
			regexp.MustCompile(`(?i)^cash\s+(and|&)\s+bank\s+balances\b`),
		},
		section: sectionBalanceSheet,
	},
	{
		metric: contracts.MetricInterestSecurities,
		tags:   []string{"InterestBearingSecurities", "CurrentInvestments"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^interest[- ]bearing\s+(securities|deposits|investments)\b`),
			regexp.MustCompile(`(?i)^current\s+investments\b`),
		},
		section: sectionBalanceSheet,
	},
	{
		metric: contracts.MetricInterestIncome,
		tags:   []string{"InterestIncome", "FinanceIncome"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^interest\s+income\b`),
			regexp.MustCompile(`(?i)^finance\s+income\b`),
		},
		section: sectionProfitLoss,
	},
	{
		metric: contracts.MetricDividendIncome,
		tags:   []string{"DividendIncome"},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^dividend\s+income\b`),
		},
		section: sectionProfitLoss,
	},
}

// RequiredMetrics are the metrics the ratio engine cannot screen
// without. Their absence produces a MissingMetric warning.
func RequiredMetrics() []contracts.Metric {
	var out []contracts.Metric
	for _, spec := range vocabulary {
		if spec.required {
			out = append(out, spec.metric)
		}
	}
	return out
}

// labelConfidence scores a pattern match by its specificity: earlier
// vocabulary patterns are more specific lines and score higher.
func labelConfidence(patternIdx int) float64 {
	conf := 0.90 - 0.15*float64(patternIdx)
	if conf < 0.50 {
		conf = 0.50
	}
	return conf
}

// sectionBonus is added when a match sits under its expected
// statement section header.
const sectionBonus = 0.10
