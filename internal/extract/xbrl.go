package extract

import (
	"bytes"
	"fmt"

	"github.com/antchfx/xmlquery"

	"github.com/halallens/screener/internal/contracts"
)

// XBRLExtractor parses tagged financial data by direct element lookup
// against the fixed metric-name mapping in the vocabulary. Tagged
// sources are authoritative, so every fact carries full confidence.
type XBRLExtractor struct {
	norm *Normalizer
}

// NewXBRLExtractor creates the structured-format variant
func NewXBRLExtractor(norm *Normalizer) *XBRLExtractor {
	return &XBRLExtractor{norm: norm}
}

// Format returns the source format tag this variant handles
func (e *XBRLExtractor) Format() contracts.SourceFormat {
	return contracts.FormatXBRL
}

// Extract looks up each vocabulary tag in the document. Missing tags
// are left to the registry to report; a scale problem fails only the
// affected metric.
func (e *XBRLExtractor) Extract(filing *contracts.Filing, body []byte) ([]contracts.Fact, []contracts.ExtractionWarning, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse xbrl document: %w", err)
	}

	var facts []contracts.Fact
	var warnings []contracts.ExtractionWarning

	for _, spec := range vocabulary {
		var node *xmlquery.Node
		var tag string
		for _, t := range spec.tags {
			node = xmlquery.FindOne(doc, fmt.Sprintf("//*[local-name()='%s']", t))
			if node != nil {
				tag = t
				break
			}
		}
		if node == nil {
			continue
		}

		raw, err := ParseAmount(node.InnerText())
		if err != nil {
			warnings = append(warnings, contracts.ExtractionWarning{
				FilingID: filing.ID,
				Metric:   spec.metric,
				Kind:     contracts.WarnMissingMetric,
				Detail:   fmt.Sprintf("unparseable value in tag %s: %v", tag, err),
			})
			continue
		}

		// Element-level declarations override the filing defaults
		scale := node.SelectAttr("scale")
		if scale == "" {
			scale = filing.Scale
		}
		currency := node.SelectAttr("unitRef")
		if currency == "" {
			currency = filing.Currency
		}

		value, err := e.norm.Convert(raw, scale, currency)
		if err != nil {
			warnings = append(warnings, contracts.ExtractionWarning{
				FilingID: filing.ID,
				Metric:   spec.metric,
				Kind:     contracts.WarnAmbiguousScale,
				Detail:   err.Error(),
			})
			continue
		}

		facts = append(facts, contracts.Fact{
			FilingID:   filing.ID,
			Metric:     spec.metric,
			Value:      value,
			Currency:   e.norm.Reporting,
			Confidence: 1.0,
			Locator:    "xbrl:" + tag,
		})
	}

	return keepBest(facts), warnings, nil
}
