// Package extract recovers a structured review report from the
// free-form text returned by a generative model.
package extract

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rafaelq/code-review-back/internal/domain"
)

const (
	// FallbackCorrectedCode marks a report whose corrected code could
	// not be recovered from the model output.
	FallbackCorrectedCode = "// unavailable: model response could not be parsed"

	fallbackTitle       = "Review Parsing Warning"
	fallbackStatusEmoji = "⚠️"
	rawPreviewLimit     = 200
)

// Extract locates a JSON object inside raw model output and decodes it
// as a review report. The model frequently wraps the object in prose or
// markdown fences, so the candidate span is everything between the
// first '{' and the last '}'. Any failure degrades to a fallback
// report; this function never returns an error.
func Extract(raw string) domain.ReviewReport {
	candidate, ok := jsonCandidate(raw)
	if !ok {
		return fallbackReport(raw)
	}

	var report domain.ReviewReport
	if err := json.Unmarshal([]byte(candidate), &report); err != nil {
		return fallbackReport(raw)
	}

	return withDefaults(report)
}

// IsFallback reports whether the report is the parse-failure stand-in
// rather than a review the model actually produced. Such reports are
// transient: the caller may want to retry instead of keeping them.
func IsFallback(report domain.ReviewReport) bool {
	return report.HasError &&
		report.Title == fallbackTitle &&
		report.CorrectedCode == FallbackCorrectedCode
}

// withDefaults guarantees that a successfully parsed report still has
// every field populated, even when the model omitted some keys.
func withDefaults(report domain.ReviewReport) domain.ReviewReport {
	if report.Issues == nil {
		report.Issues = []string{}
	}
	if report.Suggestions == nil {
		report.Suggestions = []string{}
	}
	if strings.TrimSpace(report.Title) == "" {
		report.Title = "Code Review"
	}
	if strings.TrimSpace(report.StatusEmoji) == "" {
		if report.HasError {
			report.StatusEmoji = "❌"
		} else {
			report.StatusEmoji = "✅"
		}
	}
	if strings.TrimSpace(report.ReviewMarkdown) == "" {
		report.ReviewMarkdown = "The model returned no written review for this submission."
	}
	if strings.TrimSpace(report.CorrectedCode) == "" {
		report.CorrectedCode = FallbackCorrectedCode
	}
	return report
}

func jsonCandidate(raw string) (string, bool) {
	cleaned := stripFences(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return "", false
	}
	return cleaned[start : end+1], true
}

// stripFences removes markdown code fences and a leading language tag
// such as ```json so the brace scan does not trip on fence content.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.Contains(cleaned, "```") {
		return cleaned
	}

	cleaned = strings.ReplaceAll(cleaned, "```json", "```")
	cleaned = strings.ReplaceAll(cleaned, "```JSON", "```")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

func fallbackReport(raw string) domain.ReviewReport {
	preview := strings.TrimSpace(raw)
	if utf8.RuneCountInString(preview) > rawPreviewLimit {
		runes := []rune(preview)
		preview = string(runes[:rawPreviewLimit])
	}

	issues := []string{"could not parse model response"}
	if preview != "" {
		issues = append(issues, "raw response prefix: "+preview)
	}

	return domain.ReviewReport{
		HasError:       true,
		StatusEmoji:    fallbackStatusEmoji,
		Title:          fallbackTitle,
		Issues:         issues,
		Suggestions:    []string{},
		ReviewMarkdown: "The model returned output that could not be interpreted as a structured review. Resubmit the code to retry the analysis.",
		CorrectedCode:  FallbackCorrectedCode,
	}
}
