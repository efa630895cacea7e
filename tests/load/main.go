// Command load runs an in-process benchmark of the review API against
// a stubbed model provider and prints latency percentiles as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

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

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type cacheResult struct {
	ColdCalls   int     `json:"cold_model_calls"`
	WarmCalls   int     `json:"warm_model_calls"`
	HitRatioPct float64 `json:"hit_ratio_pct"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	ReviewCache    cacheResult      `json:"review_cache"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

const stubModelOutput = `{
  "has_error": false,
  "status_emoji": "✅",
  "title": "Code Review",
  "issues": [],
  "suggestions": ["extract the magic number into a constant"],
  "review_markdown": "## Review\nNo blocking issues.",
  "corrected_code": "print(1)"
}`

// stubGenerator simulates the model provider with a fixed latency so
// the benchmark exercises the service layers, not the network.
type stubGenerator struct {
	latency time.Duration
	calls   int64
	mu      sync.Mutex
}

func (g *stubGenerator) Generate(ctx context.Context, request ai.GenerateRequest) (ai.GenerateResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return ai.GenerateResult{}, ctx.Err()
		}
	}
	return ai.GenerateResult{Text: stubModelOutput, ModelID: request.Model}, nil
}

func (g *stubGenerator) Available() bool { return true }

func (g *stubGenerator) Provider() string { return "stub" }

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.calls)
}

type benchmarkEnv struct {
	server    *httptest.Server
	generator *stubGenerator
	cancel    context.CancelFunc
}

func main() {
	submitTotal := flag.Int("submit-total", 240, "total async review submissions")
	submitConcurrency := flag.Int("submit-concurrency", 24, "concurrency for async submissions")
	statusTotal := flag.Int("status-total", 240, "total job status requests")
	statusConcurrency := flag.Int("status-concurrency", 24, "concurrency for job status requests")
	syncTotal := flag.Int("sync-total", 80, "total synchronous review requests")
	syncConcurrency := flag.Int("sync-concurrency", 8, "concurrency for synchronous reviews")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	submitScenario := runScenario("review_submit_async", *submitTotal, *submitConcurrency, func(index int) error {
		payload := map[string]any{
			"code":     fmt.Sprintf("def handler_%d():\n    return %d", index, index),
			"filename": fmt.Sprintf("handler_%d.py", index%16),
		}
		_, err := postJSON(client, env.server.URL+"/api/review", payload, http.StatusAccepted)
		return err
	})

	// Seed one finished job so the status scenario polls a realistic record.
	statusJobID, err := seedCompletedJob(client, env.server.URL)
	if err != nil {
		log.Fatalf("failed to seed job for status scenario: %v", err)
	}

	statusScenario := runScenario("review_status_poll", *statusTotal, *statusConcurrency, func(index int) error {
		return getJSON(client, env.server.URL+"/api/review/"+statusJobID, http.StatusOK)
	})

	syncScenario := runScenario("review_sync", *syncTotal, *syncConcurrency, func(index int) error {
		payload := map[string]any{
			"code":     fmt.Sprintf("SELECT %d FROM metrics;", index),
			"filename": "metrics.sql",
		}
		_, err := postJSON(client, env.server.URL+"/api/review?sync=true", payload, http.StatusOK)
		return err
	})

	cacheStats := runCacheScenario(client, env)

	results := []scenarioResult{submitScenario, statusScenario, syncScenario}
	slo := map[string]bool{
		"submit_p95_le_500ms": submitScenario.P95MS <= 500,
		"status_p95_le_200ms": statusScenario.P95MS <= 200,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		ReviewCache:    cacheStats,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	repo := repository.NewMemoryJobsRepository()
	localQueue := queue.NewLocalQueue(4096, 3, logger)
	generator := &stubGenerator{latency: 2 * time.Millisecond}

	engine := review.NewEngine(review.Dependencies{
		Router:    ai.NewModelRouter(ai.ModelRouterConfig{}),
		Client:    generator,
		Validator: quality.NewReportValidator(),
		Cache: cache.NewReviewCache(cache.Config{
			TTL:        10 * time.Minute,
			MaxEntries: 4000,
		}),
		PromptsDir: resolvePromptsDir(),
		Logger:     logger,
	})

	jobsService := service.NewJobsService(repo, localQueue)
	api := handlers.NewAPI(handlers.Dependencies{
		Jobs:         jobsService,
		Engine:       engine,
		Provider:     generator.Provider(),
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

	processor := worker.NewProcessor(localQueue, repo, engine, 8, logger)
	go processor.Start(ctx)

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server:    server,
		generator: generator,
		cancel:    cancel,
	}, nil
}

// resolvePromptsDir handles running from the repo root (go run
// ./tests/load) as well as from the package directory.
func resolvePromptsDir() string {
	candidates := []string{"prompts", filepath.Join("..", "..", "prompts")}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return "prompts"
}

func seedCompletedJob(client *http.Client, baseURL string) (string, error) {
	body, err := postJSON(client, baseURL+"/api/review", map[string]any{
		"code":     "def seed():\n    return 42",
		"filename": "seed.py",
	}, http.StatusAccepted)
	if err != nil {
		return "", err
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		return "", fmt.Errorf("missing job_id in submit response: %+v", body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		request, err := http.NewRequest(http.MethodGet, baseURL+"/api/review/"+jobID, nil)
		if err != nil {
			return "", err
		}
		response, err := client.Do(request)
		if err != nil {
			return "", err
		}
		var decoded map[string]any
		err = json.NewDecoder(response.Body).Decode(&decoded)
		response.Body.Close()
		if err == nil {
			if status, _ := decoded["status"].(string); status == "COMPLETED" || status == "FAILED" {
				return jobID, nil
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return "", fmt.Errorf("job %s did not finish in time", jobID)
}

// runCacheScenario sends the same snippet twice and reports how many
// model calls the second round avoided.
func runCacheScenario(client *http.Client, env *benchmarkEnv) cacheResult {
	payload := map[string]any{
		"code":     "class Account:\n    def __init__(self, owner):\n        self.owner = owner",
		"filename": "account.py",
	}

	before := env.generator.callCount()
	for i := 0; i < 10; i++ {
		_, _ = postJSON(client, env.server.URL+"/api/review?sync=true", payload, http.StatusOK)
	}
	cold := env.generator.callCount() - before

	before = env.generator.callCount()
	for i := 0; i < 10; i++ {
		_, _ = postJSON(client, env.server.URL+"/api/review?sync=true", payload, http.StatusOK)
	}
	warm := env.generator.callCount() - before

	hitRatio := 0.0
	if cold+warm > 0 {
		hitRatio = (1 - float64(cold+warm)/20.0) * 100
	}
	return cacheResult{
		ColdCalls:   cold,
		WarmCalls:   warm,
		HitRatioPct: round2(hitRatio),
	}
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	expectedStatus int,
) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if response.StatusCode != expectedStatus {
		return nil, fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(raw))
	}

	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return decoded, nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
