package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"contentforge/internal/domain"
	"contentforge/internal/progress"
	"contentforge/pkg/export"
)

type createJobRequest struct {
	Mode              string   `json:"mode"`
	Topic             string   `json:"topic"`
	ImageURLs         []string `json:"imageUrls"`
	Count             int      `json:"count"`
	Language          string   `json:"language"`
	SystemPrompt      string   `json:"systemPrompt"`
	ImagePromptSuffix string   `json:"imagePromptSuffix"`
}

type jobResponse struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	Topic      string     `json:"topic,omitempty"`
	ImageURLs  []string   `json:"imageUrls,omitempty"`
	Count      int        `json:"count"`
	Language   string     `json:"language"`
	Status     string     `json:"status"`
	Progress   int        `json:"progress"`
	Percentage int        `json:"percentage"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

func toJobResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		ID:         job.ID,
		Mode:       string(job.Mode),
		Topic:      job.Topic,
		ImageURLs:  job.ImageURLs,
		Count:      job.Count,
		Language:   job.Language,
		Status:     string(job.Status),
		Progress:   job.Progress,
		Percentage: job.Percentage(),
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
	}
	if !job.UpdatedAt.IsZero() {
		t := job.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

// JobCreate assembles and persists a new generation job. Image-mode source
// images must already live in durable storage; the request carries their
// URLs, never raw file data.
func (a *App) JobCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	settings, err := a.Settings.Get(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("jobs: load settings")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load settings")
		return
	}

	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = settings.ContentLanguage
	}
	if _, err := language.Parse(lang); err != nil {
		a.domainError(w, domain.ValidationError(fmt.Sprintf("unsupported language %q", lang)))
		return
	}

	systemPrompt := strings.TrimSpace(req.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = settings.SystemPrompt
	}
	if req.Mode == string(domain.ModeImage) && settings.VisionSystemPrompt != "" && req.SystemPrompt == "" {
		systemPrompt = settings.VisionSystemPrompt
	}
	suffix := req.ImagePromptSuffix
	if suffix == "" {
		suffix = settings.ImagePromptSuffix
	}

	count := req.Count
	if req.Mode == string(domain.ModeImage) && count == 0 {
		count = len(req.ImageURLs)
	}

	job := &domain.Job{
		ID:                uuid.NewString(),
		UserID:            userID,
		Mode:              domain.GenerationMode(req.Mode),
		Topic:             strings.TrimSpace(req.Topic),
		ImageURLs:         req.ImageURLs,
		Count:             count,
		Language:          lang,
		SystemPrompt:      systemPrompt,
		ImagePromptSuffix: suffix,
		Status:            domain.JobStatusPending,
	}
	if err := job.Validate(); err != nil {
		a.domainError(w, err)
		return
	}

	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("jobs: create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	a.Feed.NotifyCreated(r.Context(), job.ID)

	a.json(w, http.StatusAccepted, toJobResponse(job))
}

// JobList returns the owner's recent jobs.
func (a *App) JobList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs, err := a.Jobs.ListByUser(r.Context(), userID, 20)
	if err != nil {
		a.Logger.Error().Err(err).Msg("jobs: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobGet returns one job snapshot.
func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobCancel requests cooperative cancellation. The in-flight item, if any,
// finishes first; callers should expect up to one item's worth of provider
// latency before the terminal update arrives.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	if err := a.Jobs.Cancel(r.Context(), job.ID); err != nil {
		a.domainError(w, err)
		return
	}
	job.Status = domain.JobStatusCancelled
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobEvents streams job updates as server-sent events: one initial snapshot,
// then every observed change, closing after a terminal state is delivered.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	ctx := r.Context()
	updates, stop := a.Feed.SubscribeJob(ctx, job.ID)
	defer stop()

	// Re-read after subscribing: a terminal publish landing between the
	// ownership check and the subscription would otherwise never reach this
	// stream, leaving it heartbeating forever.
	if current, err := a.Jobs.GetByID(ctx, job.ID); err == nil {
		job = current
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := progress.Snapshot(job)
	a.writeEvent(w, snapshot)
	flusher.Flush()
	if job.Status.Terminal() {
		return
	}

	heartbeat := a.Config.SubscribeHeartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	lastProgress := snapshot.Progress
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Comment line keeps intermediaries from closing an idle stream.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case update, open := <-updates:
			if !open {
				return
			}
			// Drop stale out-of-order deliveries; progress is monotone.
			if update.Progress < lastProgress && !update.Status.Terminal() {
				continue
			}
			lastProgress = update.Progress
			a.writeEvent(w, update)
			flusher.Flush()
			if update.Status.Terminal() {
				return
			}
		}
	}
}

func (a *App) writeEvent(w http.ResponseWriter, update progress.Update) {
	payload, err := json.Marshal(update)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: job\ndata: %s\n\n", payload)
}

// JobExport bundles a job's generated articles into a zip download.
func (a *App) JobExport(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJobForUser(w, r)
	if !ok {
		return
	}
	articles, err := a.Articles.ListByJob(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: list articles for export")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load articles")
		return
	}

	var entries []export.Entry
	for i := range articles {
		article := &articles[i]
		entries = append(entries, export.ArticleEntry(i+1, article.Title, article.Content))
		if data := a.loadStoredImage(r, article.ImageURL); len(data) > 0 {
			entries = append(entries, export.Entry{
				Name: fmt.Sprintf("article-%02d%s", i+1, export.ImageExt(article.ImageURL)),
				Data: data,
			})
		}
	}

	archive := export.Archive(entries)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// loadStoredImage resolves a locally stored image URL back to its bytes.
// Remote URLs (image-mode source images) are skipped rather than refetched.
func (a *App) loadStoredImage(r *http.Request, imageURL string) []byte {
	if a.Store == nil || imageURL == "" {
		return nil
	}
	key, ok := strings.CutPrefix(imageURL, strings.TrimRight(a.Config.StorageBaseURL, "/")+"/")
	if !ok {
		return nil
	}
	data, err := a.Store.Read(r.Context(), key)
	if err != nil {
		return nil
	}
	return data
}

func (a *App) loadJobForUser(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job id required")
		return nil, false
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		} else {
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: load failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		}
		return nil, false
	}
	if job.UserID != userID {
		// Ownership is enforced as absence, not 403, to avoid oracle leaks.
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	return job, true
}
