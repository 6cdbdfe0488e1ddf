package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/halallens/screener/internal/contracts"
)

// TextExtractor parses free-text and line-oriented table layouts via
// pattern-anchored matching against the statement-line vocabulary.
// It tracks the current statement section while scanning so matches
// near their expected header score higher.
type TextExtractor struct {
	norm *Normalizer
}

// NewTextExtractor creates the unstructured-text variant
func NewTextExtractor(norm *Normalizer) *TextExtractor {
	return &TextExtractor{norm: norm}
}

// Format returns the source format tag this variant handles
func (e *TextExtractor) Format() contracts.SourceFormat {
	return contracts.FormatText
}

var trailingAmountRe = regexp.MustCompile(`(\(?[0-9][0-9,.]*\)?)\s*$`)

// Extract scans line by line. A vocabulary label match anchors the
// metric; the figure is the trailing number on the same line.
func (e *TextExtractor) Extract(filing *contracts.Filing, body []byte) ([]contracts.Fact, []contracts.ExtractionWarning, error) {
	text := string(body)

	scale, ambiguous := DetectScale(text)
	if scale == "" && !ambiguous {
		scale = filing.Scale
	}

	var facts []contracts.Fact
	var warnings []contracts.ExtractionWarning

	currentSection := ""
	for lineNo, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if isSectionHeader(trimmed) {
			currentSection = trimmed
			continue
		}

		for _, spec := range vocabulary {
			patternIdx := matchLabel(spec, trimmed)
			if patternIdx < 0 {
				continue
			}

			if ambiguous {
				warnings = appendScaleWarning(warnings, filing.ID, spec.metric)
				break
			}

			m := trailingAmountRe.FindStringSubmatch(trimmed)
			if m == nil {
				break
			}
			raw, err := ParseAmount(m[1])
			if err != nil {
				break
			}

			value, err := e.norm.Convert(raw, scale, filing.Currency)
			if err != nil {
				warnings = append(warnings, contracts.ExtractionWarning{
					FilingID: filing.ID,
					Metric:   spec.metric,
					Kind:     contracts.WarnAmbiguousScale,
					Detail:   err.Error(),
				})
				break
			}

			conf := labelConfidence(patternIdx) * 0.90
			if spec.section != nil && spec.section.MatchString(currentSection) {
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
				Locator:    fmt.Sprintf("line:%d", lineNo+1),
			})
			break
		}
	}

	return keepBest(facts), warnings, nil
}

var sectionHeaderRe = regexp.MustCompile(`(?i)^(statement\s+of|balance\s+sheet|profit\s+(and|&)\s+loss|income\s+statement|market\s+data|notes?\s+to)`)

func isSectionHeader(line string) bool {
	// Headers carry no trailing figure
	if trailingAmountRe.MatchString(line) {
		return false
	}
	return sectionHeaderRe.MatchString(line)
}
