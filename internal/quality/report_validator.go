package quality

import (
	"strings"

	"github.com/rafaelq/code-review-back/internal/domain"
)

const (
	maxIssueLength       = 500
	maxSuggestionLength  = 500
	maxFindingsPerReport = 20
)

// ReportValidator normalizes extracted review reports so the
// downstream invariant holds: every field populated, issues reserved
// for breaking problems only.
type ReportValidator struct{}

func NewReportValidator() *ReportValidator {
	return &ReportValidator{}
}

// Normalize clamps and deduplicates findings and reconciles the
// issues list with the has_error flag. Issues describe code that
// cannot run; a report without a breaking error carries none.
func (v *ReportValidator) Normalize(report domain.ReviewReport) domain.ReviewReport {
	report.Title = strings.TrimSpace(report.Title)
	report.StatusEmoji = strings.TrimSpace(report.StatusEmoji)
	report.ReviewMarkdown = strings.TrimSpace(report.ReviewMarkdown)

	report.Issues = normalizeFindings(report.Issues, maxIssueLength)
	report.Suggestions = normalizeFindings(report.Suggestions, maxSuggestionLength)

	if !report.HasError {
		report.Issues = []string{}
	}
	if report.HasError && report.StatusEmoji == "✅" {
		report.StatusEmoji = "❌"
	}

	return report
}

func normalizeFindings(findings []string, maxLength int) []string {
	result := make([]string, 0, len(findings))
	seen := make(map[string]struct{}, len(findings))

	for _, finding := range findings {
		cleaned := strings.TrimSpace(finding)
		if cleaned == "" {
			continue
		}
		if len(cleaned) > maxLength {
			cleaned = truncateAtWord(cleaned, maxLength)
		}

		key := strings.ToLower(cleaned)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}

		result = append(result, cleaned)
		if len(result) == maxFindingsPerReport {
			break
		}
	}

	return result
}

func truncateAtWord(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	truncated := text[:limit]
	if index := strings.LastIndex(truncated, " "); index > limit/2 {
		truncated = truncated[:index]
	}
	return strings.TrimSpace(truncated) + "…"
}
