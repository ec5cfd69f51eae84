package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"contentforge/internal/http/handlers"
	"contentforge/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, chimw.Logger)
	r.Use(middleware.CORS(app.Config.AllowedOrigins))

	// Health
	r.Get("/v1/healthz", app.Health)

	// Generated images are served straight off the file store.
	fileServer := http.StripPrefix("/storage/", http.FileServer(http.Dir(app.Store.BasePath())))
	r.Get("/storage/*", fileServer.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))
		r.Use(middleware.RateLimit(120, time.Minute))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", app.JobCreate)
			r.Get("/", app.JobList)
			r.Get("/{id}", app.JobGet)
			r.Post("/{id}/cancel", app.JobCancel)
			r.Get("/{id}/events", app.JobEvents)
			r.Get("/{id}/export", app.JobExport)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Get("/", app.ArticleList)
			r.Get("/{id}", app.ArticleGet)
			r.Patch("/{id}", app.ArticleUpdate)
			r.Delete("/{id}", app.ArticleDelete)
			r.Post("/{id}/duplicate", app.ArticleDuplicate)
			r.Post("/{id}/schedule", app.ArticleSchedule)
			r.Post("/{id}/publish", app.ArticlePublish)
			r.Post("/{id}/regenerate-text", app.ArticleRegenerateText)
			r.Post("/{id}/regenerate-image-prompt", app.ArticleRegenerateImagePrompt)
			r.Post("/{id}/regenerate-image", app.ArticleRegenerateImage)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", app.SettingsGet)
			r.Put("/", app.SettingsPut)
		})
	})

	return r
}
