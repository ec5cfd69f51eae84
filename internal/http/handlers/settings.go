package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"contentforge/internal/domain"
)

type settingsResponse struct {
	SystemPrompt       string    `json:"systemPrompt"`
	ContentLanguage    string    `json:"contentLanguage"`
	VisionSystemPrompt string    `json:"visionSystemPrompt,omitempty"`
	ImagePromptSuffix  string    `json:"imagePromptSuffix,omitempty"`
	ImageAspectRatio   string    `json:"imageAspectRatio"`
	WebhookURL         string    `json:"webhookUrl,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toSettingsResponse(s *domain.Settings) settingsResponse {
	return settingsResponse{
		SystemPrompt:       s.SystemPrompt,
		ContentLanguage:    s.ContentLanguage,
		VisionSystemPrompt: s.VisionSystemPrompt,
		ImagePromptSuffix:  s.ImagePromptSuffix,
		ImageAspectRatio:   s.ImageAspectRatio,
		WebhookURL:         s.WebhookURL,
		UpdatedAt:          s.UpdatedAt,
	}
}

// SettingsGet returns the caller's settings, falling back to defaults when
// nothing has been saved yet.
func (a *App) SettingsGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	settings, err := a.Settings.Get(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("settings: load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}
	a.json(w, http.StatusOK, toSettingsResponse(settings))
}

type settingsUpdateRequest struct {
	SystemPrompt       *string `json:"systemPrompt"`
	ContentLanguage    *string `json:"contentLanguage"`
	VisionSystemPrompt *string `json:"visionSystemPrompt"`
	ImagePromptSuffix  *string `json:"imagePromptSuffix"`
	ImageAspectRatio   *string `json:"imageAspectRatio"`
	WebhookURL         *string `json:"webhookUrl"`
}

var allowedAspectRatios = map[string]bool{
	"1:1": true, "3:4": true, "4:3": true, "9:16": true, "16:9": true,
}

// SettingsPut merges the provided fields into the caller's settings.
func (a *App) SettingsPut(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	settings, err := a.Settings.Get(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("settings: load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}
	if req.SystemPrompt != nil {
		settings.SystemPrompt = *req.SystemPrompt
	}
	if req.ContentLanguage != nil {
		tag := strings.TrimSpace(*req.ContentLanguage)
		if _, err := language.Parse(tag); err != nil {
			a.domainError(w, domain.ValidationError("invalid content language"))
			return
		}
		settings.ContentLanguage = tag
	}
	if req.VisionSystemPrompt != nil {
		settings.VisionSystemPrompt = *req.VisionSystemPrompt
	}
	if req.ImagePromptSuffix != nil {
		settings.ImagePromptSuffix = *req.ImagePromptSuffix
	}
	if req.ImageAspectRatio != nil {
		if !allowedAspectRatios[*req.ImageAspectRatio] {
			a.domainError(w, domain.ValidationError("unsupported aspect ratio"))
			return
		}
		settings.ImageAspectRatio = *req.ImageAspectRatio
	}
	if req.WebhookURL != nil {
		raw := strings.TrimSpace(*req.WebhookURL)
		if raw != "" {
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				a.domainError(w, domain.ValidationError("webhook url must be http or https"))
				return
			}
		}
		settings.WebhookURL = raw
	}
	settings.UpdatedAt = time.Now().UTC()
	if err := a.Settings.Put(r.Context(), settings); err != nil {
		a.Logger.Error().Err(err).Msg("settings: save failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to save settings")
		return
	}
	a.json(w, http.StatusOK, toSettingsResponse(settings))
}
