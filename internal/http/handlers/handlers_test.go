package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
	"contentforge/internal/middleware"
	"contentforge/internal/progress"
	"contentforge/internal/providers/genai"
	"contentforge/internal/webhook"
)

// In-memory repositories and collaborator fakes shared by the handler tests.

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs(jobs ...*domain.Job) *memJobs {
	m := &memJobs{jobs: map[string]*domain.Job{}}
	for _, j := range jobs {
		copy := *j
		m.jobs[j.ID] = &copy
	}
	return m
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *job
	copy.CreatedAt = time.Now()
	m.jobs[job.ID] = &copy
	return nil
}

func (m *memJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *job
	return &copy, nil
}

func (m *memJobs) ListByUser(_ context.Context, userID string, limit int) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, job := range m.jobs {
		if job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobs) ClaimPending(context.Context, time.Duration) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

// setStatus flips a stored job's status directly, bypassing the transition
// guards. Used to model state changes that race the handler under test.
func (m *memJobs) setStatus(jobID string, status domain.JobStatus, progress int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		job.Status = status
		job.Progress = progress
	}
}

func (m *memJobs) UpdateProgress(_ context.Context, jobID string, progress int) error {
	return nil
}

func (m *memJobs) Finish(_ context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	return nil
}

func (m *memJobs) Cancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrInvalidState
	}
	job.Status = domain.JobStatusCancelled
	return nil
}

type memArticles struct {
	mu       sync.Mutex
	articles map[string]*domain.Article
}

func newMemArticles(articles ...*domain.Article) *memArticles {
	m := &memArticles{articles: map[string]*domain.Article{}}
	for _, a := range articles {
		copy := *a
		m.articles[a.ID] = &copy
	}
	return m
}

func (m *memArticles) Create(_ context.Context, article *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *article
	copy.CreatedAt = time.Now()
	m.articles[article.ID] = &copy
	return nil
}

func (m *memArticles) GetByID(_ context.Context, id string) (*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	article, ok := m.articles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *article
	return &copy, nil
}

func (m *memArticles) ListByUser(_ context.Context, userID string, limit int) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Article
	for _, a := range m.articles {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memArticles) ListByJob(_ context.Context, jobID string) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Article
	for _, a := range m.articles {
		if a.JobID == jobID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memArticles) ListDue(context.Context, time.Time, int) ([]domain.Article, error) {
	return nil, nil
}

func (m *memArticles) Update(_ context.Context, article *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[article.ID]; !ok {
		return domain.ErrNotFound
	}
	copy := *article
	m.articles[article.ID] = &copy
	return nil
}

func (m *memArticles) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	article, ok := m.articles[id]
	if !ok || article.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.articles, id)
	return nil
}

type memSettings struct {
	mu       sync.Mutex
	settings map[string]*domain.Settings
}

func newMemSettings() *memSettings {
	return &memSettings{settings: map[string]*domain.Settings{}}
}

func (m *memSettings) Get(_ context.Context, userID string) (*domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[userID]; ok {
		copy := *s
		return &copy, nil
	}
	return domain.DefaultSettings(userID), nil
}

func (m *memSettings) Put(_ context.Context, settings *domain.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *settings
	m.settings[settings.UserID] = &copy
	return nil
}

type stubFeed struct {
	mu      sync.Mutex
	created []string
	updates chan progress.Update

	// onSubscribe, when set, runs inside SubscribeJob. Tests use it to mutate
	// state in the window between the handler's ownership read and its
	// subscription.
	onSubscribe func()
}

func newStubFeed() *stubFeed {
	return &stubFeed{updates: make(chan progress.Update, 16)}
}

func (f *stubFeed) NotifyCreated(_ context.Context, jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, jobID)
}

func (f *stubFeed) SubscribeJob(context.Context, string) (<-chan progress.Update, func()) {
	if f.onSubscribe != nil {
		f.onSubscribe()
	}
	return f.updates, func() {}
}

type stubGenerator struct {
	rewrite *genai.TextRewrite
	prompt  string
	asset   *genai.ImageAsset
	err     error
}

func (g *stubGenerator) RegenerateText(context.Context, *domain.Article, string) (*genai.TextRewrite, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.rewrite, nil
}

func (g *stubGenerator) RegenerateImagePrompt(context.Context, *domain.Article, string, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.prompt, nil
}

func (g *stubGenerator) GenerateImage(context.Context, string) (*genai.ImageAsset, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.asset, nil
}

type stubPoster struct {
	urls []string
	err  error
}

func (p *stubPoster) Post(_ context.Context, url string, _ webhook.Payload) error {
	p.urls = append(p.urls, url)
	return p.err
}

type testEnv struct {
	app      *App
	jobs     *memJobs
	articles *memArticles
	settings *memSettings
	feed     *stubFeed
	gen      *stubGenerator
	poster   *stubPoster
	router   chi.Router
}

func newTestEnv() *testEnv {
	cfg := &infra.Config{
		AppEnv:             "test",
		JWTSecret:          "test-secret",
		StorageBaseURL:     "http://localhost:8080/storage",
		SubscribeHeartbeat: time.Second,
	}
	env := &testEnv{
		jobs:     newMemJobs(),
		articles: newMemArticles(),
		settings: newMemSettings(),
		feed:     newStubFeed(),
		gen:      &stubGenerator{},
		poster:   &stubPoster{},
	}
	env.app = &App{
		Jobs:      env.jobs,
		Articles:  env.articles,
		Settings:  env.settings,
		Generator: env.gen,
		Publisher: env.poster,
		Feed:      env.feed,
		Config:    cfg,
		Logger:    infra.NewLogger("test"),
	}

	r := chi.NewRouter()
	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", env.app.JobCreate)
		r.Get("/", env.app.JobList)
		r.Get("/{id}", env.app.JobGet)
		r.Post("/{id}/cancel", env.app.JobCancel)
		r.Get("/{id}/events", env.app.JobEvents)
		r.Get("/{id}/export", env.app.JobExport)
	})
	r.Route("/v1/articles", func(r chi.Router) {
		r.Get("/", env.app.ArticleList)
		r.Get("/{id}", env.app.ArticleGet)
		r.Patch("/{id}", env.app.ArticleUpdate)
		r.Delete("/{id}", env.app.ArticleDelete)
		r.Post("/{id}/duplicate", env.app.ArticleDuplicate)
		r.Post("/{id}/schedule", env.app.ArticleSchedule)
		r.Post("/{id}/publish", env.app.ArticlePublish)
		r.Post("/{id}/regenerate-text", env.app.ArticleRegenerateText)
		r.Post("/{id}/regenerate-image-prompt", env.app.ArticleRegenerateImagePrompt)
	})
	r.Route("/v1/settings", func(r chi.Router) {
		r.Get("/", env.app.SettingsGet)
		r.Put("/", env.app.SettingsPut)
	})
	env.router = r
	return env
}

// asUser attaches the authenticated user to the request the same way the JWT
// middleware does.
func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}
