package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/halallens/screener/internal/contracts"
)

// HTMLExtractor parses statement tables out of HTML result
// announcements. Row labels are matched against the statement-line
// vocabulary; confidence reflects pattern specificity and whether the
// table sits under its expected section header.
type HTMLExtractor struct {
	norm *Normalizer
}

// NewHTMLExtractor creates the HTML-table variant
func NewHTMLExtractor(norm *Normalizer) *HTMLExtractor {
	return &HTMLExtractor{norm: norm}
}

// Format returns the source format tag this variant handles
func (e *HTMLExtractor) Format() contracts.SourceFormat {
	return contracts.FormatHTML
}

// Extract walks every table row and matches the first cell against
// the vocabulary. The figure is the last cell that parses as an
// amount, which tolerates note-reference and prior-period columns.
func (e *HTMLExtractor) Extract(filing *contracts.Filing, body []byte) ([]contracts.Fact, []contracts.ExtractionWarning, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html document: %w", err)
	}

	scale, ambiguous := DetectScale(doc.Text())
	if scale == "" && !ambiguous {
		scale = filing.Scale
	}

	var facts []contracts.Fact
	var warnings []contracts.ExtractionWarning

	doc.Find("table").Each(func(ti int, table *goquery.Selection) {
		section := tableSection(table)

		table.Find("tr").Each(func(ri int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() < 2 {
				return
			}
			label := strings.TrimSpace(cells.First().Text())
			if label == "" {
				return
			}

			for _, spec := range vocabulary {
				patternIdx := matchLabel(spec, label)
				if patternIdx < 0 {
					continue
				}

				if ambiguous {
					warnings = appendScaleWarning(warnings, filing.ID, spec.metric)
					return
				}

				raw, ok := lastAmount(cells)
				if !ok {
					return
				}

				value, err := e.norm.Convert(raw, scale, filing.Currency)
				if err != nil {
					warnings = append(warnings, contracts.ExtractionWarning{
						FilingID: filing.ID,
						Metric:   spec.metric,
						Kind:     contracts.WarnAmbiguousScale,
						Detail:   err.Error(),
					})
					return
				}

				conf := labelConfidence(patternIdx) * 0.95
				if spec.section != nil && spec.section.MatchString(section) {
					conf += sectionBonus
				}
				if conf > 1.0 {
					conf = 1.0
				}

				facts = append(facts, contracts.Fact{
					FilingID:   filing.ID,
					Metric:     spec.metric,
					Value:      value,
					Currency:   e.norm.Reporting,
					Confidence: conf,
					Locator:    fmt.Sprintf("table:%d/row:%d", ti, ri),
				})
				return
			}
		})
	})

	return keepBest(facts), warnings, nil
}

// tableSection resolves the nearest preceding header or caption for a
// table, used for section-proximity confidence.
func tableSection(table *goquery.Selection) string {
	if caption := table.Find("caption").First(); caption.Length() > 0 {
		return strings.TrimSpace(caption.Text())
	}
	header := table.PrevAllFiltered("h1, h2, h3, h4, p, b, strong").First()
	return strings.TrimSpace(header.Text())
}

// matchLabel returns the index of the first matching pattern, -1 if none
func matchLabel(spec metricSpec, label string) int {
	for i, p := range spec.patterns {
		if p.MatchString(label) {
			return i
		}
	}
	return -1
}

// lastAmount returns the rightmost cell value that parses as an amount
func lastAmount(cells *goquery.Selection) (float64, bool) {
	var value float64
	found := false
	cells.Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return
		}
		if v, err := ParseAmount(cell.Text()); err == nil {
			value = v
			found = true
		}
	})
	return value, found
}

func appendScaleWarning(warnings []contracts.ExtractionWarning, filingID string, metric contracts.Metric) []contracts.ExtractionWarning {
	for _, w := range warnings {
		if w.Metric == metric && w.Kind == contracts.WarnAmbiguousScale {
			return warnings
		}
	}
	return append(warnings, contracts.ExtractionWarning{
		FilingID: filingID,
		Metric:   metric,
		Kind:     contracts.WarnAmbiguousScale,
		Detail:   "conflicting scale declarations in document",
	})
}
