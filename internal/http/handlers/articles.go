package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"contentforge/internal/domain"
	"contentforge/internal/storage"
	"contentforge/internal/webhook"
)

type articleResponse struct {
	ID          string     `json:"id"`
	JobID       string     `json:"jobId,omitempty"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	ImagePrompt string     `json:"imagePrompt,omitempty"`
	Topic       string     `json:"topic,omitempty"`
	Mode        string     `json:"mode,omitempty"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Platforms   []string   `json:"platforms,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

func toArticleResponse(article *domain.Article) articleResponse {
	return articleResponse{
		ID:          article.ID,
		JobID:       article.JobID,
		Title:       article.Title,
		Content:     article.Content,
		ImageURL:    article.ImageURL,
		ImagePrompt: article.ImagePrompt,
		Topic:       article.Topic,
		Mode:        string(article.Mode),
		Status:      string(article.Status),
		ScheduledAt: article.ScheduledAt,
		Platforms:   article.Platforms,
		CreatedAt:   article.CreatedAt,
		UpdatedAt:   article.UpdatedAt,
	}
}

// ArticleList returns the owner's recent articles.
func (a *App) ArticleList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	articles, err := a.Articles.ListByUser(r.Context(), userID, 100)
	if err != nil {
		a.Logger.Error().Err(err).Msg("articles: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list articles")
		return
	}
	items := make([]articleResponse, 0, len(articles))
	for i := range articles {
		items = append(items, toArticleResponse(&articles[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ArticleGet returns one article.
func (a *App) ArticleGet(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toArticleResponse(article))
}

type articleUpdateRequest struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	ImageURL    *string `json:"imageUrl"`
	ImagePrompt *string `json:"imagePrompt"`
}

// ArticleUpdate edits the content fields of an article.
func (a *App) ArticleUpdate(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	var req articleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			a.domainError(w, domain.ValidationError("title cannot be empty"))
			return
		}
		article.Title = *req.Title
	}
	if req.Content != nil {
		article.Content = *req.Content
	}
	if req.ImageURL != nil {
		article.ImageURL = *req.ImageURL
	}
	if req.ImagePrompt != nil {
		article.ImagePrompt = *req.ImagePrompt
	}
	if err := a.Articles.Update(r.Context(), article); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toArticleResponse(article))
}

// ArticleDelete removes an article.
func (a *App) ArticleDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.Articles.Delete(r.Context(), id, userID); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArticleDuplicate copies an article as a fresh draft.
func (a *App) ArticleDuplicate(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	copy := article.Duplicate()
	copy.ID = uuid.NewString()
	if err := a.Articles.Create(r.Context(), copy); err != nil {
		a.Logger.Error().Err(err).Msg("articles: duplicate failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to duplicate article")
		return
	}
	created, err := a.Articles.GetByID(r.Context(), copy.ID)
	if err != nil {
		created = copy
	}
	a.json(w, http.StatusCreated, toArticleResponse(created))
}

type scheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt"`
	Platforms   []string   `json:"platforms"`
}

// ArticleSchedule sets or clears an article's publish schedule. A nil
// scheduledAt unschedules back to draft.
func (a *App) ArticleSchedule(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if article.Status == domain.ArticleStatusPublished {
		a.domainError(w, domain.ErrInvalidState)
		return
	}
	if req.ScheduledAt == nil {
		article.Status = domain.ArticleStatusDraft
		article.ScheduledAt = nil
		article.Platforms = nil
	} else {
		article.Status = domain.ArticleStatusScheduled
		article.ScheduledAt = req.ScheduledAt
		article.Platforms = req.Platforms
	}
	if err := a.Articles.Update(r.Context(), article); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toArticleResponse(article))
}

// ArticlePublish posts the article to the owner's webhook immediately. A
// delivery failure is surfaced to the caller and leaves the article state
// untouched.
func (a *App) ArticlePublish(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	settings, err := a.Settings.Get(r.Context(), article.UserID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("articles: load settings for publish")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}
	if settings.WebhookURL == "" {
		a.domainError(w, domain.ValidationError("no webhook configured"))
		return
	}
	err = a.Publisher.Post(r.Context(), settings.WebhookURL, webhook.Payload{
		Title:    article.Title,
		Content:  article.Content,
		ImageURL: article.ImageURL,
	})
	if err != nil {
		a.error(w, http.StatusBadGateway, "publish_failed", err.Error())
		return
	}
	article.Status = domain.ArticleStatusPublished
	article.ScheduledAt = nil
	if err := a.Articles.Update(r.Context(), article); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toArticleResponse(article))
}

// ArticleRegenerateText replaces the article's title and content with a
// fresh generation.
func (a *App) ArticleRegenerateText(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	settings, err := a.Settings.Get(r.Context(), article.UserID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("articles: load settings for regenerate")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}
	rewrite, err := a.Generator.RegenerateText(r.Context(), article, settings.SystemPrompt)
	if err != nil {
		a.domainError(w, err)
		return
	}
	article.Title = rewrite.Title
	article.Content = rewrite.Content
	if err := a.Articles.Update(r.Context(), article); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toArticleResponse(article))
}

// ArticleRegenerateImagePrompt replaces the article's image prompt.
func (a *App) ArticleRegenerateImagePrompt(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	settings, err := a.Settings.Get(r.Context(), article.UserID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("articles: load settings for regenerate")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}
	prompt, err := a.Generator.RegenerateImagePrompt(r.Context(), article, settings.SystemPrompt, settings.ImagePromptSuffix)
	if err != nil {
		a.domainError(w, err)
		return
	}
	article.ImagePrompt = prompt
	if err := a.Articles.Update(r.Context(), article); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toArticleResponse(article))
}

// ArticleRegenerateImage generates a new image from the stored image prompt
// and swaps it onto the article.
func (a *App) ArticleRegenerateImage(w http.ResponseWriter, r *http.Request) {
	article, ok := a.loadArticleForUser(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(article.ImagePrompt) == "" {
		a.domainError(w, domain.ValidationError("article has no image prompt"))
		return
	}
	asset, err := a.Generator.GenerateImage(r.Context(), article.ImagePrompt)
	if err != nil {
		a.domainError(w, err)
		return
	}
	key := storage.ImageKey("regen-"+article.ID, 1, asset.Format)
	saved, err := a.Store.Write(r.Context(), key, asset.Data)
	if err != nil {
		a.Logger.Error().Err(err).Msg("articles: store regenerated image")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store image")
		return
	}
	article.ImageURL = strings.TrimRight(a.Config.StorageBaseURL, "/") + "/" + saved
	if err := a.Articles.Update(r.Context(), article); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, toArticleResponse(article))
}

func (a *App) loadArticleForUser(w http.ResponseWriter, r *http.Request) (*domain.Article, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "article id required")
		return nil, false
	}
	article, err := a.Articles.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "article not found")
		} else {
			a.Logger.Error().Err(err).Str("article_id", id).Msg("articles: load failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load article")
		}
		return nil, false
	}
	if article.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "article not found")
		return nil, false
	}
	return article, true
}
