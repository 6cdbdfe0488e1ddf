package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Normalizer converts filing figures to absolute amounts in a single
// reporting currency, using the filing-declared scale and currency.
type Normalizer struct {
	// Reporting is the target currency code, e.g. "INR".
	Reporting string
	// Rates maps a source currency to units of reporting currency.
	Rates map[string]float64
}

// NewNormalizer creates a normalizer targeting the given currency
func NewNormalizer(reporting string) *Normalizer {
	return &Normalizer{
		Reporting: reporting,
		Rates:     map[string]float64{},
	}
}

var scaleMultipliers = map[string]float64{
	"":          1,
	"units":     1,
	"absolute":  1,
	"thousands": 1e3,
	"'000":      1e3,
	"lakhs":     1e5,
	"lacs":      1e5,
	"millions":  1e6,
	"mn":        1e6,
	"crores":    1e7,
	"cr":        1e7,
	"billions":  1e9,
}

// ScaleMultiplier resolves a declared scale word to its multiplier
func ScaleMultiplier(scale string) (float64, bool) {
	m, ok := scaleMultipliers[strings.ToLower(strings.TrimSpace(scale))]
	return m, ok
}

var scaleDeclRe = regexp.MustCompile(`(?i)(?:rs\.?|₹|rupees|amounts?)?\s*\(?\s*in\s+(thousands|'000|lakhs|lacs|millions|mn|crores|cr|billions)\s*\)?`)

// DetectScale scans document text for scale declarations like
// "(Rs. in lakhs)". Multiple conflicting declarations are ambiguous;
// the caller must fail extraction for the affected metrics only, not
// the whole filing.
func DetectScale(text string) (scale string, ambiguous bool) {
	seen := map[string]bool{}
	var first string
	for _, m := range scaleDeclRe.FindAllStringSubmatch(text, -1) {
		word := strings.ToLower(m[1])
		// fold abbreviations onto their long form
		switch word {
		case "'000":
			word = "thousands"
		case "lacs":
			word = "lakhs"
		case "mn":
			word = "millions"
		case "cr":
			word = "crores"
		}
		if !seen[word] {
			if first == "" {
				first = word
			}
			seen[word] = true
		}
	}
	if len(seen) > 1 {
		return "", true
	}
	return first, false
}

var amountCleanRe = regexp.MustCompile(`[,\s₹]|rs\.?`)

// ParseAmount parses a statement figure. Commas and currency marks are
// stripped; parentheses denote negative amounts.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "--" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = amountCleanRe.ReplaceAllString(strings.ToLower(s), "")

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}

	if negative {
		value = -value
	}
	return value, nil
}

// Convert applies scale and currency conversion to a raw figure
func (n *Normalizer) Convert(value float64, scale, currency string) (float64, error) {
	mult, ok := ScaleMultiplier(scale)
	if !ok {
		return 0, fmt.Errorf("unknown scale %q", scale)
	}
	value *= mult

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" || currency == n.Reporting {
		return value, nil
	}

	rate, ok := n.Rates[currency]
	if !ok {
		return 0, fmt.Errorf("no conversion rate for currency %q", currency)
	}
	return value * rate, nil
}
