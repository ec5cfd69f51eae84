package domain

import "time"

// ArticleStatus enumerates the publish lifecycle of an article.
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusScheduled ArticleStatus = "scheduled"
	ArticleStatusPublished ArticleStatus = "published"
)

// Article is one generated content unit with an independent publish
// lifecycle. JobID links back to the batch that produced it; duplicated or
// hand-edited articles may carry no job reference.
type Article struct {
	ID          string
	UserID      string
	JobID       string
	Title       string
	Content     string
	ImageURL    string
	ImagePrompt string
	Topic       string
	Mode        GenerationMode
	Status      ArticleStatus
	ScheduledAt *time.Time
	Platforms   []string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Duplicate returns a fresh draft copy of the article. The copy drops the
// job reference and any schedule so it starts a clean lifecycle.
func (a *Article) Duplicate() *Article {
	return &Article{
		UserID:      a.UserID,
		Title:       a.Title,
		Content:     a.Content,
		ImageURL:    a.ImageURL,
		ImagePrompt: a.ImagePrompt,
		Topic:       a.Topic,
		Mode:        a.Mode,
		Status:      ArticleStatusDraft,
	}
}
