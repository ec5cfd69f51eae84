package domain

import (
	"strings"
	"time"
)

// GenerationMode enumerates supported content generation sources.
type GenerationMode string

const (
	ModeTopics  GenerationMode = "topics"
	ModeImage   GenerationMode = "image"
	ModeWebsite GenerationMode = "website"
)

// Valid reports whether the mode is one of the known generation modes.
func (m GenerationMode) Valid() bool {
	switch m {
	case ModeTopics, ModeImage, ModeWebsite:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a job in this status accepts no further
// processing. Terminal job records are never mutated again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job encapsulates one batch generation request. Generation parameters are
// copied onto the record at creation so the worker needs nothing beyond the
// row itself to run (or resume) the batch.
type Job struct {
	ID                string
	UserID            string
	Mode              GenerationMode
	Topic             string
	ImageURLs         []string
	Count             int
	Language          string
	SystemPrompt      string
	ImagePromptSuffix string
	Status            JobStatus
	Progress          int
	Error             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Percentage returns batch completion as 0-100. A zero count reads as
// not-yet-started rather than dividing by zero.
func (j *Job) Percentage() int {
	if j.Count <= 0 {
		return 0
	}
	p := (j.Progress*100 + j.Count/2) / j.Count
	if p > 100 {
		p = 100
	}
	return p
}

// SourceImage returns the source image for the i-th item (1-based) in image
// mode. Indexes beyond the supplied list clamp to the last image; job
// creation rejects mismatched counts, so the clamp only matters for records
// written by older clients.
func (j *Job) SourceImage(item int) string {
	if len(j.ImageURLs) == 0 {
		return ""
	}
	idx := item - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(j.ImageURLs) {
		idx = len(j.ImageURLs) - 1
	}
	return j.ImageURLs[idx]
}

// Validate checks the creation-time invariants for a job request.
func (j *Job) Validate() error {
	if !j.Mode.Valid() {
		return ValidationError("unsupported generation mode")
	}
	if j.Count < 1 {
		return ValidationError("count must be at least 1")
	}
	switch j.Mode {
	case ModeTopics:
		if strings.TrimSpace(j.Topic) == "" {
			return ValidationError("topic is required for topics mode")
		}
	case ModeWebsite:
		if strings.TrimSpace(j.Topic) == "" {
			return ValidationError("website url is required for website mode")
		}
	case ModeImage:
		if len(j.ImageURLs) == 0 {
			return ValidationError("at least one source image is required for image mode")
		}
		if j.Count != len(j.ImageURLs) {
			return ValidationError("count must match the number of source images")
		}
	}
	return nil
}
