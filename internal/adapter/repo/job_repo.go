package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contentforge/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Every status
// transition carries its precondition in the WHERE clause, which is what
// keeps terminal records immutable and duplicate claims harmless under
// concurrent workers.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, user_id, mode, topic, image_urls, count, language, system_prompt, image_prompt_suffix, status, progress, error, created_at, updated_at`

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, mode, topic, image_urls, count, language, system_prompt, image_prompt_suffix, status, progress)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Mode,
		nullable(job.Topic),
		job.ImageURLs,
		job.Count,
		job.Language,
		job.SystemPrompt,
		nullable(job.ImagePromptSuffix),
		job.Status,
		job.Progress,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, jobID)
	return scanJob(row)
}

// ListByUser returns the owner's most recent jobs.
func (r *JobRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ClaimPending flips the oldest claimable job to processing and returns it.
// A processing row whose updated_at has not moved within staleAfter belongs
// to a crashed worker and is claimed again; resumption then continues from
// the recorded progress. SKIP LOCKED keeps concurrent workers from fighting
// over the same row.
func (r *JobRepositoryPG) ClaimPending(ctx context.Context, staleAfter time.Duration) (*domain.Job, error) {
	query := `
WITH next_job AS (
    SELECT id
    FROM jobs
    WHERE status = 'pending'
       OR (status = 'processing' AND updated_at < now() - make_interval(secs => $1))
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE jobs
SET status = 'processing', updated_at = now()
WHERE id IN (SELECT id FROM next_job)
RETURNING ` + jobColumns + `;
`
	row := r.pool.QueryRow(ctx, query, staleAfter.Seconds())
	return scanJob(row)
}

// UpdateProgress records item completion while the job is still processing.
// The guard means a concurrent cancellation is never clobbered; the caller
// sees ErrInvalidState instead of a silent miss.
func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE jobs
SET progress = $2, updated_at = now()
WHERE id = $1 AND status = 'processing';
`, jobID, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, jobID)
	}
	return nil
}

// Finish moves a processing job to completed or failed.
func (r *JobRepositoryPG) Finish(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE jobs
SET status = $2, error = NULLIF($3, ''), updated_at = now()
WHERE id = $1 AND status = 'processing';
`, jobID, status, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, jobID)
	}
	return nil
}

// Cancel flips a pending or processing job to cancelled.
func (r *JobRepositoryPG) Cancel(ctx context.Context, jobID string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE jobs
SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status IN ('pending', 'processing');
`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, jobID)
	}
	return nil
}

// transitionConflict distinguishes a missing job from one that already
// reached a terminal status.
func (r *JobRepositoryPG) transitionConflict(ctx context.Context, jobID string) error {
	if _, err := r.GetByID(ctx, jobID); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var topic, suffix, errMsg *string
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Mode,
		&topic,
		&job.ImageURLs,
		&job.Count,
		&job.Language,
		&job.SystemPrompt,
		&suffix,
		&job.Status,
		&job.Progress,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Topic = deref(topic)
	job.ImagePromptSuffix = deref(suffix)
	job.Error = deref(errMsg)
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
