package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job records. Status transitions are
// guarded: each mutating call takes effect only when the row is still in the
// expected prior status, which keeps terminal records immutable and makes
// duplicate processor triggers harmless.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Job, error)
	// ClaimPending flips pending -> processing and returns the claimed job,
	// or ErrNotFound when nothing is claimable. Processing rows untouched
	// for longer than staleAfter count as claimable too; their worker is
	// presumed dead and the new claimant resumes from the recorded progress.
	ClaimPending(ctx context.Context, staleAfter time.Duration) (*Job, error)
	// UpdateProgress records item completion. ErrInvalidState when the job
	// is no longer processing, so a concurrent cancellation is never
	// clobbered and the caller knows to stop.
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	// Finish moves processing -> completed/failed. ErrInvalidState when the
	// job already reached a terminal status.
	Finish(ctx context.Context, jobID string, status JobStatus, errMsg string) error
	// Cancel flips pending/processing -> cancelled. ErrInvalidState when the
	// job is already terminal.
	Cancel(ctx context.Context, jobID string) error
}

// ArticleRepository defines persistence for generated articles.
type ArticleRepository interface {
	Create(ctx context.Context, article *Article) error
	GetByID(ctx context.Context, id string) (*Article, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Article, error)
	ListByJob(ctx context.Context, jobID string) ([]Article, error)
	// ListDue returns scheduled articles whose scheduled time has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Article, error)
	Update(ctx context.Context, article *Article) error
	Delete(ctx context.Context, id, userID string) error
}

// SettingsRepository stores per-owner configuration.
type SettingsRepository interface {
	Get(ctx context.Context, userID string) (*Settings, error)
	Put(ctx context.Context, settings *Settings) error
}
