package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rafaelq/code-review-back/internal/domain"
)

type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsRepository(ctx context.Context, databaseURL string) (*PostgresJobsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresJobsRepository{pool: pool}, nil
}

func (r *PostgresJobsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	var report []byte
	if job.ReviewReport != nil {
		encoded, err := json.Marshal(job.ReviewReport)
		if err != nil {
			return fmt.Errorf("encode review report: %w", err)
		}
		report = encoded
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO review_jobs (
			id,
			filename,
			code_content,
			status,
			review_report,
			error_message,
			attempts,
			submitted_at,
			completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		job.ID,
		job.Filename,
		job.CodeContent,
		string(job.Status),
		report,
		job.ErrorMessage,
		job.Attempts,
		job.SubmittedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobFields builds one UPDATE statement covering exactly the
// requested fields, so the transition is a single atomic write.
func (r *PostgresJobsRepository) UpdateJobFields(ctx context.Context, jobID string, update JobUpdate) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}

	setClauses := make([]string, 0, 5)
	args := make([]any, 0, 6)
	args = append(args, jobID)
	argIndex := 2

	if update.Status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*update.Status))
		argIndex++
	}
	if update.ReviewReport != nil {
		encoded, err := json.Marshal(update.ReviewReport)
		if err != nil {
			return fmt.Errorf("encode review report: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("review_report = $%d", argIndex))
		args = append(args, encoded)
		argIndex++
	}
	if update.ErrorMessage != nil {
		setClauses = append(setClauses, fmt.Sprintf("error_message = $%d", argIndex))
		args = append(args, *update.ErrorMessage)
		argIndex++
	}
	if update.Attempts != nil {
		setClauses = append(setClauses, fmt.Sprintf("attempts = $%d", argIndex))
		args = append(args, *update.Attempts)
		argIndex++
	}
	if update.CompletedAt != nil {
		setClauses = append(setClauses, fmt.Sprintf("completed_at = $%d", argIndex))
		args = append(args, *update.CompletedAt)
		argIndex++
	}

	if len(setClauses) == 0 {
		return nil
	}

	query := "UPDATE review_jobs SET " + strings.Join(setClauses, ", ") + " WHERE id = $1"
	command, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}

	var (
		job         domain.Job
		status      string
		report      []byte
		submittedAt time.Time
		completedAt *time.Time
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, filename, code_content, status, review_report, error_message, attempts, submitted_at, completed_at
		FROM review_jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID,
		&job.Filename,
		&job.CodeContent,
		&status,
		&report,
		&job.ErrorMessage,
		&job.Attempts,
		&submittedAt,
		&completedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	job.SubmittedAt = submittedAt
	job.CompletedAt = completedAt
	if len(report) > 0 {
		decoded := domain.ReviewReport{}
		if err := json.Unmarshal(report, &decoded); err != nil {
			return nil, fmt.Errorf("decode review report: %w", err)
		}
		job.ReviewReport = &decoded
	}
	return &job, nil
}
