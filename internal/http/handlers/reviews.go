package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rafaelq/code-review-back/internal/domain"
	"github.com/rafaelq/code-review-back/internal/policy"
	"github.com/rafaelq/code-review-back/internal/repository"
	"github.com/rafaelq/code-review-back/internal/review"
	"github.com/rafaelq/code-review-back/internal/service"
)

const multipartMemoryLimit = 4 << 20

type reviewRequest struct {
	Code     string `json:"code"`
	Filename string `json:"filename,omitempty"`
}

// SubmitReview handles POST /api/review. The body is either JSON
// {code, filename} or a multipart upload under the "file" field with
// an allow-listed extension. Async mode answers 202 with a job id;
// sync mode blocks on the model call and answers with the report.
func (api *API) SubmitReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	code, filename, ok := api.parseSubmission(w, r)
	if !ok {
		return
	}

	if api.syncRequested(r) {
		api.reviewSync(w, r, code, filename)
		return
	}

	job, err := api.jobs.Submit(r.Context(), code, filename)
	if err != nil {
		if errors.Is(err, service.ErrEmptyCode) {
			writeError(w, http.StatusBadRequest, "No code provided")
			return
		}
		api.logf("submit failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to submit review job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// JobStatus handles GET /api/review/{job_id}.
func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/review/")
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "Invalid job ID format")
		return
	}

	view, err := api.jobs.Status(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidID):
			writeError(w, http.StatusBadRequest, "Invalid job ID format")
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "Job not found")
		default:
			api.logf("status lookup failed job_id=%s: %v", jobID, err)
			writeError(w, http.StatusInternalServerError, "failed to load job")
		}
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (api *API) parseSubmission(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		return api.parseUpload(w, r)
	}

	var request reviewRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, int64(api.rules.MaxCodeBytes())+1024))
	if err := decoder.Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return "", "", false
	}

	if err := api.rules.CheckSize(request.Code); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return request.Code, request.Filename, true
}

func (api *API) parseUpload(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart payload")
		return "", "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file upload")
		return "", "", false
	}
	defer file.Close()

	if err := api.rules.CheckFilename(header.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}

	content, err := io.ReadAll(io.LimitReader(file, int64(api.rules.MaxCodeBytes())+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return "", "", false
	}
	if err := api.rules.CheckSize(string(content)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}

	return string(content), header.Filename, true
}

func (api *API) syncRequested(r *http.Request) bool {
	if !api.asyncEnabled || api.jobs == nil {
		return true
	}
	return r.URL.Query().Get("sync") == "true"
}

func (api *API) reviewSync(w http.ResponseWriter, r *http.Request, code, filename string) {
	if strings.TrimSpace(code) == "" {
		writeError(w, http.StatusBadRequest, "No code provided")
		return
	}
	if strings.TrimSpace(filename) == "" {
		filename = "code_snippet"
	}
	if api.engine == nil {
		writeError(w, http.StatusInternalServerError, "review engine not configured")
		return
	}

	report, err := api.engine.Review(r.Context(), code, filename)
	if err != nil {
		api.logf("sync review failed: %v", err)
		switch {
		case errors.Is(err, review.ErrMissingCredential):
			writeError(w, http.StatusInternalServerError, "model API key is not configured")
		case errors.Is(err, review.ErrModelUnavailable):
			writeError(w, http.StatusInternalServerError, "model provider unavailable")
		case errors.Is(err, policy.ErrSubmissionTooLarge):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "review failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]domain.ReviewReport{"review": report})
}

func (api *API) logf(format string, args ...any) {
	if api.logger != nil {
		api.logger.Printf(format, args...)
	}
}
