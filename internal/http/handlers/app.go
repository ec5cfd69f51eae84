package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/middleware"
	"contentforge/internal/progress"
	"contentforge/internal/providers/genai"
	"contentforge/internal/storage"
	"contentforge/internal/webhook"
)

// Generator is the provider surface the API needs for article regeneration.
// Satisfied by *genai.Client.
type Generator interface {
	RegenerateText(ctx context.Context, article *domain.Article, systemPrompt string) (*genai.TextRewrite, error)
	RegenerateImagePrompt(ctx context.Context, article *domain.Article, systemPrompt, suffix string) (string, error)
	GenerateImage(ctx context.Context, prompt string) (*genai.ImageAsset, error)
}

// Poster delivers an article payload to a webhook URL. Satisfied by
// *webhook.Publisher.
type Poster interface {
	Post(ctx context.Context, url string, payload webhook.Payload) error
}

// Feed is the live job-update subscription surface. Satisfied by
// *progress.Broker.
type Feed interface {
	NotifyCreated(ctx context.Context, jobID string)
	SubscribeJob(ctx context.Context, jobID string) (<-chan progress.Update, func())
}

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Jobs      domain.JobRepository
	Articles  domain.ArticleRepository
	Settings  domain.SettingsRepository
	Generator Generator
	Publisher Poster
	Feed      Feed
	Store     *storage.FileStore
	Config    *infra.Config
	Logger    infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// domainError maps domain sentinel errors onto HTTP responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", "resource is in a terminal state")
	case errors.Is(err, domain.ErrProvider), errors.Is(err, domain.ErrTimeout):
		a.error(w, http.StatusBadGateway, "provider_failure", err.Error())
	default:
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
