package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rafaelq/code-review-back/internal/ai"
	"github.com/rafaelq/code-review-back/internal/cache"
	httpserver "github.com/rafaelq/code-review-back/internal/http"
	"github.com/rafaelq/code-review-back/internal/http/handlers"
	"github.com/rafaelq/code-review-back/internal/quality"
	"github.com/rafaelq/code-review-back/internal/queue"
	"github.com/rafaelq/code-review-back/internal/repository"
	"github.com/rafaelq/code-review-back/internal/review"
	"github.com/rafaelq/code-review-back/internal/service"
	"github.com/rafaelq/code-review-back/internal/worker"
)

const stubReviewJSON = `{
  "has_error": false,
  "status_emoji": "✅",
  "title": "Code Review",
  "issues": [],
  "suggestions": ["prefer a named constant for the retry limit"],
  "review_markdown": "## Review\nLooks good overall.",
  "corrected_code": "print(1)"
}`

// stubGenerator stands in for the model provider so the full
// submit -> queue -> worker -> poll loop runs without network access.
type stubGenerator struct {
	output string
	err    error
}

func (g *stubGenerator) Generate(ctx context.Context, request ai.GenerateRequest) (ai.GenerateResult, error) {
	if g.err != nil {
		return ai.GenerateResult{}, g.err
	}
	return ai.GenerateResult{Text: g.output, ModelID: request.Model}, nil
}

func (g *stubGenerator) Available() bool { return true }

func (g *stubGenerator) Provider() string { return "stub" }

type integrationRuntime struct {
	server *httptest.Server
	cancel context.CancelFunc
}

func startIntegrationRuntime(t *testing.T, generator ai.TextGenerator) integrationRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)
	repo := repository.NewMemoryJobsRepository()
	localQueue := queue.NewLocalQueue(256, 3, logger)

	engine := review.NewEngine(review.Dependencies{
		Router:    ai.NewModelRouter(ai.ModelRouterConfig{}),
		Client:    generator,
		Validator: quality.NewReportValidator(),
		Cache: cache.NewReviewCache(cache.Config{
			TTL:        time.Minute,
			MaxEntries: 128,
		}),
		PromptsDir: filepath.Join("..", "..", "prompts"),
		Logger:     logger,
	})

	jobsService := service.NewJobsService(repo, localQueue)
	api := handlers.NewAPI(handlers.Dependencies{
		Jobs:         jobsService,
		Engine:       engine,
		Provider:     "stub",
		AsyncEnabled: true,
		Logger:       logger,
	})
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	processor := worker.NewProcessor(localQueue, repo, engine, 2, logger)
	go processor.Start(ctx)

	server := httptest.NewServer(router)
	return integrationRuntime{
		server: server,
		cancel: func() {
			cancel()
			server.Close()
		},
	}
}

func postJSON(
	t *testing.T,
	client *http.Client,
	url string,
	payload any,
) (int, map[string]any) {
	t.Helper()

	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response body (%d): %s", response.StatusCode, string(raw))
	}

	return response.StatusCode, decoded
}

func getJSON(t *testing.T, client *http.Client, url string) (int, map[string]any) {
	t.Helper()

	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build get request: %v", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute get request: %v", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode get response body (%d): %s", response.StatusCode, string(raw))
	}

	return response.StatusCode, decoded
}

func waitForTerminalJob(
	t *testing.T,
	client *http.Client,
	baseURL string,
	jobID string,
	timeout time.Duration,
) map[string]any {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, body := getJSON(t, client, fmt.Sprintf("%s/api/review/%s", baseURL, jobID))
		if status != http.StatusOK {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		jobStatus, _ := body["status"].(string)
		if jobStatus == "COMPLETED" || jobStatus == "FAILED" {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for job %s to finish", jobID)
	return nil
}

func TestSubmitPollCompleteFlow(t *testing.T) {
	runtime := startIntegrationRuntime(t, &stubGenerator{output: stubReviewJSON})
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	code := "def add(a, b):\n    return a + b"
	status, body := postJSON(t, client, baseURL+"/api/review", map[string]any{
		"code":     code,
		"filename": "math_utils.py",
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202 from submit, got %d body=%+v", status, body)
	}
	if body["status"] != "PENDING" {
		t.Fatalf("expected PENDING on submit, got %+v", body["status"])
	}
	jobID, _ := body["job_id"].(string)
	if _, err := uuid.Parse(jobID); err != nil {
		t.Fatalf("expected uuid job id, got %q", jobID)
	}

	job := waitForTerminalJob(t, client, baseURL, jobID, 4*time.Second)
	if job["status"] != "COMPLETED" {
		t.Fatalf("expected COMPLETED job, got %+v", job)
	}

	report, ok := job["review_report"].(map[string]any)
	if !ok {
		t.Fatalf("expected review_report in job status, got %+v", job)
	}
	if report["title"] != "Code Review" {
		t.Fatalf("unexpected report title: %+v", report)
	}
	suggestions, ok := report["suggestions"].([]any)
	if !ok || len(suggestions) == 0 {
		t.Fatalf("expected suggestions in report: %+v", report)
	}

	raw, _ := json.Marshal(job)
	if strings.Contains(string(raw), code) {
		t.Fatal("job status payload leaked submitted code")
	}
}

func TestFailedModelCallMarksJobFailed(t *testing.T) {
	runtime := startIntegrationRuntime(t, &stubGenerator{err: fmt.Errorf("provider exploded")})
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, body := postJSON(t, client, baseURL+"/api/review", map[string]any{
		"code": "print(1)",
	})
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%+v", status, body)
	}
	jobID, _ := body["job_id"].(string)

	job := waitForTerminalJob(t, client, baseURL, jobID, 4*time.Second)
	if job["status"] != "FAILED" {
		t.Fatalf("expected FAILED job, got %+v", job)
	}
	message, _ := job["error"].(string)
	if strings.TrimSpace(message) == "" {
		t.Fatalf("expected error message on failed job, got %+v", job)
	}
	if _, present := job["review_report"]; present {
		t.Fatalf("failed job must not carry a report: %+v", job)
	}
}

func TestSubmissionValidationAndLookups(t *testing.T) {
	runtime := startIntegrationRuntime(t, &stubGenerator{output: stubReviewJSON})
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, body := postJSON(t, client, baseURL+"/api/review", map[string]any{"code": "  "})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty code, got %d", status)
	}
	if body["error"] != "No code provided" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	status, body = getJSON(t, client, baseURL+"/api/review/not-a-valid-id")
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", status)
	}
	if body["error"] != "Invalid job ID format" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	status, body = getJSON(t, client, baseURL+"/api/review/"+uuid.NewString())
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", status)
	}
	if body["error"] != "Job not found" {
		t.Fatalf("unexpected error body: %+v", body)
	}
}

func TestSyncReviewFlow(t *testing.T) {
	runtime := startIntegrationRuntime(t, &stubGenerator{output: stubReviewJSON})
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL

	status, body := postJSON(t, client, baseURL+"/api/review?sync=true", map[string]any{
		"code":     "SELECT * FROM jobs;",
		"filename": "query.sql",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from sync review, got %d body=%+v", status, body)
	}

	report, ok := body["review"].(map[string]any)
	if !ok {
		t.Fatalf("expected review payload, got %+v", body)
	}
	if report["status_emoji"] != "✅" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestHealthEndpoint(t *testing.T) {
	runtime := startIntegrationRuntime(t, &stubGenerator{output: stubReviewJSON})
	defer runtime.cancel()

	status, body := getJSON(t, runtime.server.Client(), runtime.server.URL+"/api/health")
	if status != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", status)
	}
	if body["status"] != "healthy" || body["provider"] != "stub" {
		t.Fatalf("unexpected health payload: %+v", body)
	}
}
