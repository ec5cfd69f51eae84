package domain

import (
	"errors"
	"testing"
	"time"
)

func TestJobPercentage(t *testing.T) {
	cases := []struct {
		name     string
		progress int
		count    int
		want     int
	}{
		{"zero count", 0, 0, 0},
		{"not started", 0, 10, 0},
		{"one third", 1, 3, 33},
		{"two thirds rounds up", 2, 3, 67},
		{"half", 5, 10, 50},
		{"complete", 10, 10, 100},
		{"overshoot clamps", 11, 10, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := Job{Progress: tc.progress, Count: tc.count}
			if got := j.Percentage(); got != tc.want {
				t.Fatalf("Percentage() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestJobSourceImage(t *testing.T) {
	j := Job{ImageURLs: []string{"a.jpg", "b.jpg", "c.jpg"}}

	if got := j.SourceImage(1); got != "a.jpg" {
		t.Fatalf("item 1 = %q, want a.jpg", got)
	}
	if got := j.SourceImage(3); got != "c.jpg" {
		t.Fatalf("item 3 = %q, want c.jpg", got)
	}
	// Out-of-range items clamp to the last image.
	if got := j.SourceImage(7); got != "c.jpg" {
		t.Fatalf("item 7 = %q, want c.jpg", got)
	}
	if got := j.SourceImage(0); got != "a.jpg" {
		t.Fatalf("item 0 = %q, want a.jpg", got)
	}

	empty := Job{}
	if got := empty.SourceImage(1); got != "" {
		t.Fatalf("empty list = %q, want empty string", got)
	}
}

func TestJobValidate(t *testing.T) {
	valid := Job{Mode: ModeTopics, Topic: "coffee", Count: 3}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid job, got %v", err)
	}

	cases := []struct {
		name string
		job  Job
	}{
		{"unknown mode", Job{Mode: "video", Count: 1}},
		{"zero count", Job{Mode: ModeTopics, Topic: "x", Count: 0}},
		{"topics without topic", Job{Mode: ModeTopics, Count: 1}},
		{"website without url", Job{Mode: ModeWebsite, Count: 1}},
		{"image without sources", Job{Mode: ModeImage, Count: 1}},
		{"image count mismatch", Job{Mode: ModeImage, Count: 3, ImageURLs: []string{"a.jpg"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.job.Validate()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	image := Job{Mode: ModeImage, Count: 2, ImageURLs: []string{"a.jpg", "b.jpg"}}
	if err := image.Validate(); err != nil {
		t.Fatalf("expected matched image job to validate, got %v", err)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusProcessing} {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestArticleDuplicate(t *testing.T) {
	now := time.Now()
	original := Article{
		ID:          "a-1",
		UserID:      "u-1",
		JobID:       "j-1",
		Title:       "Title",
		Content:     "Body",
		ImageURL:    "http://img",
		ImagePrompt: "prompt",
		Status:      ArticleStatusPublished,
		ScheduledAt: &now,
		Platforms:   []string{"x"},
	}

	copy := original.Duplicate()
	if copy.ID != "" {
		t.Fatal("duplicate must not inherit the id")
	}
	if copy.JobID != "" {
		t.Fatal("duplicate must not stay linked to the batch")
	}
	if copy.Status != ArticleStatusDraft {
		t.Fatalf("duplicate status = %s, want draft", copy.Status)
	}
	if copy.ScheduledAt != nil {
		t.Fatal("duplicate must not inherit the schedule")
	}
	if copy.Title != original.Title || copy.Content != original.Content {
		t.Fatal("duplicate must keep the content")
	}
}
