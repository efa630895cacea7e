package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/rafaelq/code-review-back/internal/domain"
	"github.com/rafaelq/code-review-back/internal/policy"
	"github.com/rafaelq/code-review-back/internal/service"
)

// Reviewer is the synchronous review path; the async path goes
// through JobsService instead.
type Reviewer interface {
	Review(ctx context.Context, code, filename string) (domain.ReviewReport, error)
}

type API struct {
	jobs         *service.JobsService
	engine       Reviewer
	rules        *policy.SubmissionRules
	provider     string
	asyncEnabled bool
	logger       *log.Logger
}

type Dependencies struct {
	Jobs         *service.JobsService
	Engine       Reviewer
	Rules        *policy.SubmissionRules
	Provider     string
	AsyncEnabled bool
	Logger       *log.Logger
}

func NewAPI(deps Dependencies) *API {
	if deps.Rules == nil {
		deps.Rules = policy.NewSubmissionRules(nil, 0)
	}
	if deps.Provider == "" {
		deps.Provider = "unconfigured"
	}
	return &API{
		jobs:         deps.Jobs,
		engine:       deps.Engine,
		rules:        deps.Rules,
		provider:     deps.Provider,
		asyncEnabled: deps.AsyncEnabled,
		logger:       deps.Logger,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
