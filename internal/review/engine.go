// Package review turns a code submission into a structured review
// report through a single model call.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/rafaelq/code-review-back/internal/ai"
	"github.com/rafaelq/code-review-back/internal/cache"
	"github.com/rafaelq/code-review-back/internal/domain"
	"github.com/rafaelq/code-review-back/internal/extract"
	"github.com/rafaelq/code-review-back/internal/quality"
)

var (
	// ErrMissingCredential means no provider API key is configured.
	// Operator intervention is required; callers surface this as a
	// server-side configuration failure.
	ErrMissingCredential = errors.New("review engine: no model API key configured")

	// ErrModelUnavailable wraps transport or quota failures from the
	// provider. The engine does not retry beyond the client's own
	// bounded retry; the caller decides what to do next.
	ErrModelUnavailable = errors.New("review engine: model unavailable")
)

const (
	promptVersion = "review_v1"
	promptFile    = "review_v1.tmpl"

	// maxCodeChars bounds prompt size for oversized uploads. Roughly
	// a 16k-token input budget at 4 chars per token.
	maxCodeChars = 64000

	truncationMarker = "\n... [truncated for review: file exceeds the analysis budget]\n"
)

// reviewReportSchema constrains provider output when the provider
// supports structured schemas.
var reviewReportSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"has_error": {"type": "boolean"},
		"status_emoji": {"type": "string"},
		"title": {"type": "string"},
		"issues": {"type": "array", "items": {"type": "string"}},
		"suggestions": {"type": "array", "items": {"type": "string"}},
		"review_markdown": {"type": "string"},
		"corrected_code": {"type": "string"}
	},
	"required": ["has_error", "status_emoji", "title", "issues", "suggestions", "review_markdown", "corrected_code"],
	"additionalProperties": false
}`)

type Dependencies struct {
	Router     *ai.ModelRouter
	Client     ai.TextGenerator
	Validator  *quality.ReportValidator
	Cache      *cache.ReviewCache
	PromptsDir string
	Logger     *log.Logger
}

type Engine struct {
	router     *ai.ModelRouter
	client     ai.TextGenerator
	validator  *quality.ReportValidator
	cache      *cache.ReviewCache
	promptsDir string
	logger     *log.Logger

	tmplMu    sync.RWMutex
	templates map[string]*template.Template
}

func NewEngine(deps Dependencies) *Engine {
	promptsDir := strings.TrimSpace(deps.PromptsDir)
	if promptsDir == "" {
		promptsDir = "prompts"
	}
	if deps.Router == nil {
		deps.Router = ai.NewModelRouter(ai.ModelRouterConfig{})
	}
	if deps.Validator == nil {
		deps.Validator = quality.NewReportValidator()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewReviewCache(cache.Config{})
	}

	return &Engine{
		router:     deps.Router,
		client:     deps.Client,
		validator:  deps.Validator,
		cache:      deps.Cache,
		promptsDir: promptsDir,
		logger:     deps.Logger,
		templates:  make(map[string]*template.Template),
	}
}

// Review analyzes one code submission. The only hard failures are a
// missing credential and an unreachable provider; unparseable model
// output degrades to a fallback report instead of an error.
func (e *Engine) Review(ctx context.Context, code, filename string) (domain.ReviewReport, error) {
	if e.client == nil || !e.client.Available() {
		return domain.ReviewReport{}, ErrMissingCredential
	}

	signature := e.cache.BuildSignature(code, promptVersion, filename)
	if cached, ok := e.cache.Get(signature); ok {
		return cached.Report, nil
	}

	prompt, err := e.renderPrompt(promptFile, map[string]any{
		"Filename": filename,
		"Code":     budgetedCode(code),
	})
	if err != nil {
		return domain.ReviewReport{}, fmt.Errorf("render review prompt: %w", err)
	}

	text, modelID, callErr := e.generateText(ctx, prompt)
	if callErr != nil {
		return domain.ReviewReport{}, fmt.Errorf("%w: %v", ErrModelUnavailable, callErr)
	}

	extracted := extract.Extract(text)
	report := e.validator.Normalize(extracted)

	// A parse-failure fallback is transient: caching it would pin the
	// degraded report for the full TTL and defeat the resubmission it
	// recommends.
	if extract.IsFallback(extracted) {
		e.logf("unparseable model output not cached filename=%s model=%s", filename, modelID)
		return report, nil
	}

	e.cache.Set(signature, cache.Entry{Report: report, ModelID: modelID})
	e.logf("review generated filename=%s model=%s has_error=%t", filename, modelID, report.HasError)
	return report, nil
}

// generateText tries the primary model with a constrained schema,
// drops the schema when the provider rejects it, and finally tries
// the fallback model.
func (e *Engine) generateText(ctx context.Context, prompt string) (string, string, error) {
	profile := e.router.Review()

	request := ai.GenerateRequest{
		Model:           profile.PrimaryModel,
		Instructions:    "Return only valid JSON. Do not use markdown code fences.",
		Input:           prompt,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
		ResponseSchema:  reviewReportSchema,
		SchemaName:      "review_report",
	}

	result, err := e.client.Generate(ctx, request)
	if err == nil {
		return result.Text, firstNonEmpty(result.ModelID, profile.PrimaryModel), nil
	}

	if isSchemaRejection(err) {
		freeText := request
		freeText.ResponseSchema = nil
		freeText.SchemaName = ""
		result, retryErr := e.client.Generate(ctx, freeText)
		if retryErr == nil {
			e.logf("provider rejected response schema, free-text fallback used")
			return result.Text, firstNonEmpty(result.ModelID, profile.PrimaryModel), nil
		}
		err = retryErr
	}

	if strings.TrimSpace(profile.FallbackModel) == "" || profile.FallbackModel == profile.PrimaryModel {
		return "", "", err
	}

	fallback := request
	fallback.Model = profile.FallbackModel
	fallbackResult, fallbackErr := e.client.Generate(ctx, fallback)
	if fallbackErr != nil {
		return "", "", fmt.Errorf("primary model failed: %v; fallback failed: %w", err, fallbackErr)
	}
	return fallbackResult.Text, firstNonEmpty(fallbackResult.ModelID, profile.FallbackModel), nil
}

func (e *Engine) renderPrompt(fileName string, data any) (string, error) {
	tmpl, err := e.loadTemplate(fileName)
	if err != nil {
		return "", err
	}

	buffer := bytes.NewBuffer(nil)
	if err := tmpl.Execute(buffer, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", fileName, err)
	}
	return buffer.String(), nil
}

func (e *Engine) loadTemplate(fileName string) (*template.Template, error) {
	e.tmplMu.RLock()
	cached, ok := e.templates[fileName]
	e.tmplMu.RUnlock()
	if ok {
		return cached, nil
	}

	path := filepath.Join(e.promptsDir, fileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", path, err)
	}

	tmpl, err := template.New(fileName).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", path, err)
	}

	e.tmplMu.Lock()
	e.templates[fileName] = tmpl
	e.tmplMu.Unlock()
	return tmpl, nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func budgetedCode(code string) string {
	if len(code) <= maxCodeChars {
		return code
	}
	return code[:maxCodeChars] + truncationMarker
}

func isSchemaRejection(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "status 400") &&
		(strings.Contains(message, "schema") || strings.Contains(message, "response_format") || strings.Contains(message, "format"))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
