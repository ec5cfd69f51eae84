package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/webhook"
)

// Poster delivers a payload to a webhook URL. Satisfied by
// *webhook.Publisher; tests substitute fakes.
type Poster interface {
	Post(ctx context.Context, url string, payload webhook.Payload) error
}

// Checker periodically posts due scheduled articles to their owners'
// webhooks. An article whose owner has no webhook configured is dropped back
// to draft with a warning instead of being retried forever; the same applies
// to failed deliveries, so a dead endpoint cannot wedge the schedule.
type Checker struct {
	articles domain.ArticleRepository
	settings domain.SettingsRepository
	poster   Poster
	logger   infra.Logger
	batch    int
}

// NewChecker wires a checker from its collaborators.
func NewChecker(articles domain.ArticleRepository, settings domain.SettingsRepository, poster Poster, logger infra.Logger) *Checker {
	return &Checker{
		articles: articles,
		settings: settings,
		poster:   poster,
		logger:   logger,
		batch:    100,
	}
}

// Start registers the checker on a cron scheduler using the given spec
// (standard five-field cron syntax) and starts it. The returned cron is
// stopped by the caller on shutdown.
func (c *Checker) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	runner := cron.New()
	if _, err := runner.AddFunc(spec, func() {
		c.RunOnce(ctx)
	}); err != nil {
		return nil, err
	}
	runner.Start()
	c.logger.Info().Str("spec", spec).Msg("scheduler: started")
	return runner, nil
}

// RunOnce processes one batch of due articles.
func (c *Checker) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	due, err := c.articles.ListDue(ctx, now, c.batch)
	if err != nil {
		c.logger.Error().Err(err).Msg("scheduler: list due articles")
		return
	}
	if len(due) == 0 {
		return
	}
	c.logger.Info().Int("due", len(due)).Msg("scheduler: posting due articles")

	for i := range due {
		article := &due[i]
		c.postOne(ctx, article)
	}
}

func (c *Checker) postOne(ctx context.Context, article *domain.Article) {
	logger := c.logger.With().Str("article_id", article.ID).Str("user_id", article.UserID).Logger()

	settings, err := c.settings.Get(ctx, article.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("scheduler: load settings")
		return
	}
	if settings.WebhookURL == "" {
		logger.Warn().Msg("scheduler: no webhook configured, unscheduling article")
		c.unschedule(ctx, article, logger)
		return
	}

	err = c.poster.Post(ctx, settings.WebhookURL, webhook.Payload{
		Title:    article.Title,
		Content:  article.Content,
		ImageURL: article.ImageURL,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("scheduler: webhook delivery failed, unscheduling article")
		c.unschedule(ctx, article, logger)
		return
	}

	article.Status = domain.ArticleStatusPublished
	if err := c.articles.Update(ctx, article); err != nil {
		logger.Error().Err(err).Msg("scheduler: mark published")
		return
	}
	logger.Info().Msg("scheduler: article published")
}

func (c *Checker) unschedule(ctx context.Context, article *domain.Article, logger infra.Logger) {
	article.Status = domain.ArticleStatusDraft
	article.ScheduledAt = nil
	if err := c.articles.Update(ctx, article); err != nil {
		logger.Error().Err(err).Msg("scheduler: unschedule write failed")
	}
}
