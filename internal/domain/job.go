package domain

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further status transition may occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the persisted lifecycle record of one review request.
// CodeContent is immutable after creation and excluded from status
// responses.
type Job struct {
	ID           string
	CodeContent  string
	Filename     string
	Status       JobStatus
	ReviewReport *ReviewReport
	ErrorMessage string
	Attempts     int
	SubmittedAt  time.Time
	CompletedAt  *time.Time
}

// JobView is the polling representation of a job: the full record
// minus the submitted code.
type JobView struct {
	ID           string        `json:"job_id"`
	Filename     string        `json:"filename"`
	Status       JobStatus     `json:"status"`
	ReviewReport *ReviewReport `json:"review_report,omitempty"`
	Error        string        `json:"error,omitempty"`
	SubmittedAt  time.Time     `json:"submitted_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// View strips the code content from a job record.
func (j *Job) View() JobView {
	return JobView{
		ID:           j.ID,
		Filename:     j.Filename,
		Status:       j.Status,
		ReviewReport: j.ReviewReport,
		Error:        j.ErrorMessage,
		SubmittedAt:  j.SubmittedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// ReviewReport is the structured verdict for one code submission.
// All six content fields are always populated so consumers never
// branch on missing fields.
type ReviewReport struct {
	HasError       bool     `json:"has_error"`
	StatusEmoji    string   `json:"status_emoji"`
	Title          string   `json:"title"`
	Issues         []string `json:"issues"`
	Suggestions    []string `json:"suggestions"`
	ReviewMarkdown string   `json:"review_markdown"`
	CorrectedCode  string   `json:"corrected_code"`
}

// QueueMessage references an enqueued job; the code itself stays in
// the job store.
type QueueMessage struct {
	JobID       string    `json:"job_id"`
	Filename    string    `json:"filename"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
