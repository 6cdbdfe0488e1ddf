package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/halallens/screener/internal/contracts"
)

// Headline classification. The crawler delivers filings with a
// category and headline; before extraction we decide whether the
// filing is financial at all and pull period metadata out of the
// headline text.

var (
	resultKeywords = []string{"result", "financial results", "quarterly results", "annual results"}
	boardKeywords  = []string{"approve", "consideration", "quarter ended", "year ended"}
)

// IsFinancialFiling reports whether a filing looks like a financial
// results announcement worth extracting.
func IsFinancialFiling(category, headline string) bool {
	headline = strings.ToLower(headline)

	switch category {
	case "Result", "Results":
		return true
	case "Board Meeting":
		return containsAny(headline, boardKeywords)
	}

	return containsAny(headline, resultKeywords)
}

// IngestConfidence grades how certain we are that the filing carries
// financial results: HIGH for result filings, MEDIUM for board
// meetings discussing results, LOW otherwise.
func IngestConfidence(category, headline string) string {
	headline = strings.ToLower(headline)

	if category == "Result" || category == "Results" {
		return "HIGH"
	}
	if category == "Board Meeting" && containsAny(headline, boardKeywords) {
		return "MEDIUM"
	}
	return "LOW"
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

var (
	periodRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)quarter\s+ended\s+(\d{2}\.\d{2}\.\d{4})`),
		regexp.MustCompile(`(?i)year\s+ended\s+(\d{2}\.\d{2}\.\d{4})`),
		regexp.MustCompile(`(?i)period\s+ended\s+(\d{2}\.\d{2}\.\d{4})`),
	}
	quarterRe     = regexp.MustCompile(`(?i)\bq([1-4])\b`)
	quarterWords  = map[string]string{"first": "Q1", "second": "Q2", "third": "Q3", "fourth": "Q4"}
	quarterWordRe = regexp.MustCompile(`(?i)\b(first|second|third|fourth)\s+quarter\b`)
	fiscalYearRe  = regexp.MustCompile(`(?i)\bfy\s*(\d{4})`)
)

// ClassifyHeadline extracts reporting-period metadata from a filing
// headline: quarter, fiscal year, audit status, statement basis.
func ClassifyHeadline(headline string) contracts.FilingMeta {
	lower := strings.ToLower(headline)

	meta := contracts.FilingMeta{}

	if m := quarterRe.FindStringSubmatch(lower); m != nil {
		meta.Quarter = "Q" + m[1]
	} else if m := quarterWordRe.FindStringSubmatch(lower); m != nil {
		meta.Quarter = quarterWords[strings.ToLower(m[1])]
	}

	if m := fiscalYearRe.FindStringSubmatch(lower); m != nil {
		meta.FiscalYear = m[1]
	}

	// "unaudited" contains "audited", so check it first
	if strings.Contains(lower, "unaudited") {
		meta.AuditStatus = "unaudited"
	} else if strings.Contains(lower, "audited") {
		meta.AuditStatus = "audited"
	}

	if strings.Contains(lower, "consolidated") {
		meta.Basis = "consolidated"
	} else if strings.Contains(lower, "standalone") {
		meta.Basis = "standalone"
	}

	return meta
}

// ParsePeriodEnd pulls a period-end date like "31.03.2025" from a
// headline. Returns false when no recognizable period is present.
func ParsePeriodEnd(headline string) (time.Time, bool) {
	for _, re := range periodRes {
		if m := re.FindStringSubmatch(headline); m != nil {
			t, err := time.Parse("02.01.2006", m[1])
			if err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
