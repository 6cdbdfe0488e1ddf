package extract

import (
	"fmt"
	"time"

	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/logger"
)

// Extractor parses one source format into normalized facts.
// Implementations are pure: no side effects beyond the returned
// facts and warnings, so extraction is reproducible.
type Extractor interface {
	Format() contracts.SourceFormat
	Extract(filing *contracts.Filing, body []byte) ([]contracts.Fact, []contracts.ExtractionWarning, error)
}

// Registry selects the extractor variant by the filing's declared
// source format. New formats register a variant; there is no
// inheritance chain to extend.
type Registry struct {
	extractors map[contracts.SourceFormat]Extractor
	floor      float64
	logger     *logger.Logger
	now        func() time.Time
}

// NewRegistry creates a registry with the built-in format variants
func NewRegistry(cfg config.ScreeningConfig, log *logger.Logger) *Registry {
	norm := NewNormalizer(cfg.ReportingCurrency)

	r := &Registry{
		extractors: map[contracts.SourceFormat]Extractor{},
		floor:      cfg.ExtractionConfidenceFloor,
		logger:     log.WithField("module", "extract"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	r.Register(NewXBRLExtractor(norm))
	r.Register(NewHTMLExtractor(norm))
	r.Register(NewTextExtractor(norm))
	return r
}

// Register adds a format variant
func (r *Registry) Register(e Extractor) {
	r.extractors[e.Format()] = e
}

// Extract parses the filing body with the variant matching its
// declared format. Matches below the confidence floor are retained
// but flagged low-confidence so downstream consumers decide their own
// tolerance. Missing required metrics produce warnings, not failures.
func (r *Registry) Extract(filing *contracts.Filing, body []byte) ([]contracts.Fact, []contracts.ExtractionWarning, error) {
	ext, ok := r.extractors[filing.Format]
	if !ok {
		return nil, nil, fmt.Errorf("format %q: %w", filing.Format, contracts.ErrUnsupportedFormat)
	}

	facts, warnings, err := ext.Extract(filing, body)
	if err != nil {
		return nil, warnings, err
	}

	extractedAt := r.now()
	have := map[contracts.Metric]bool{}
	for i := range facts {
		facts[i].ExtractedAt = extractedAt
		facts[i].LowConfidence = facts[i].Confidence < r.floor
		have[facts[i].Metric] = true
	}

	for _, metric := range RequiredMetrics() {
		if have[metric] {
			continue
		}
		if hasWarning(warnings, metric) {
			continue
		}
		warnings = append(warnings, contracts.ExtractionWarning{
			FilingID: filing.ID,
			Metric:   metric,
			Kind:     contracts.WarnMissingMetric,
		})
	}

	r.logger.WithFields(map[string]interface{}{
		"filing_id": filing.ID,
		"format":    string(filing.Format),
		"facts":     len(facts),
		"warnings":  len(warnings),
	}).Debug("Extraction completed")

	return facts, warnings, nil
}

func hasWarning(warnings []contracts.ExtractionWarning, metric contracts.Metric) bool {
	for _, w := range warnings {
		if w.Metric == metric {
			return true
		}
	}
	return false
}

// keepBest retains the highest-confidence fact per metric so a filing
// carries at most one fact per metric.
func keepBest(facts []contracts.Fact) []contracts.Fact {
	best := map[contracts.Metric]int{}
	var out []contracts.Fact
	for _, f := range facts {
		if idx, ok := best[f.Metric]; ok {
			if f.Confidence > out[idx].Confidence {
				out[idx] = f
			}
			continue
		}
		best[f.Metric] = len(out)
		out = append(out, f)
	}
	return out
}
