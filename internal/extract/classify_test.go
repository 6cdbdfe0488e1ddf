package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsFinancialFiling(t *testing.T) {
	tests := []struct {
		name     string
		category string
		headline string
		want     bool
	}{
		{"result category", "Result", "anything", true},
		{"results category", "Results", "anything", true},
		{"board meeting with results keyword", "Board Meeting", "To approve results for quarter ended 31.03.2025", true},
		{"board meeting unrelated", "Board Meeting", "Change of registered office", false},
		{"headline keyword", "Announcement", "Unaudited quarterly results", true},
		{"unrelated", "Announcement", "Appointment of company secretary", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFinancialFiling(tt.category, tt.headline))
		})
	}
}

func TestIngestConfidence(t *testing.T) {
	assert.Equal(t, "HIGH", IngestConfidence("Result", ""))
	assert.Equal(t, "MEDIUM", IngestConfidence("Board Meeting", "to approve quarterly results"))
	assert.Equal(t, "LOW", IngestConfidence("Announcement", "results update"))
}

func TestClassifyHeadline(t *testing.T) {
	meta := ClassifyHeadline("Unaudited Standalone Financial Results (Q1 FY2026) for the quarter ended 30.06.2025")

	assert.Equal(t, "Q1", meta.Quarter)
	assert.Equal(t, "2026", meta.FiscalYear)
	assert.Equal(t, "unaudited", meta.AuditStatus)
	assert.Equal(t, "standalone", meta.Basis)
}

func TestClassifyHeadlineQuarterWords(t *testing.T) {
	meta := ClassifyHeadline("Audited consolidated results for the third quarter")

	assert.Equal(t, "Q3", meta.Quarter)
	assert.Equal(t, "audited", meta.AuditStatus)
	assert.Equal(t, "consolidated", meta.Basis)
}

func TestParsePeriodEnd(t *testing.T) {
	got, ok := ParsePeriodEnd("Results for the quarter ended 31.03.2025")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), got)

	_, ok = ParsePeriodEnd("Change of registered office")
	assert.False(t, ok)
}
