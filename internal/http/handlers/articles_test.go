package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"contentforge/internal/domain"
	"contentforge/internal/providers/genai"
)

func draftArticle(id, userID string) *domain.Article {
	return &domain.Article{
		ID:          id,
		UserID:      userID,
		Title:       "Original",
		Content:     "Original body",
		ImageURL:    "http://localhost:8080/storage/generated/j/article-01.png",
		ImagePrompt: "a sunrise",
		Status:      domain.ArticleStatusDraft,
	}
}

func TestArticleUpdate_EditsFields(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))

	body := `{"title":"Edited","content":"New body"}`
	req := asUser(httptest.NewRequest("PATCH", "/v1/articles/a-1", strings.NewReader(body)), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	stored, _ := env.articles.GetByID(req.Context(), "a-1")
	if stored.Title != "Edited" || stored.Content != "New body" {
		t.Fatalf("unexpected stored article %+v", stored)
	}
	// Untouched fields survive the patch.
	if stored.ImagePrompt != "a sunrise" {
		t.Fatalf("image prompt should be untouched, got %q", stored.ImagePrompt)
	}
}

func TestArticleUpdate_RejectsEmptyTitle(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))

	req := asUser(httptest.NewRequest("PATCH", "/v1/articles/a-1", strings.NewReader(`{"title":"  "}`)), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 400 {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestArticleDelete(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))

	req := asUser(httptest.NewRequest("DELETE", "/v1/articles/a-1", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 204 {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if _, err := env.articles.GetByID(req.Context(), "a-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("expected article to be gone")
	}
}

func TestArticleDuplicate_CreatesFreshDraft(t *testing.T) {
	env := newTestEnv()
	at := time.Now().Add(time.Hour)
	original := draftArticle("a-1", "user-1")
	original.JobID = "job-1"
	original.Status = domain.ArticleStatusScheduled
	original.ScheduledAt = &at
	_ = env.articles.Create(nil, original)

	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/duplicate", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 201 {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp["id"] == "a-1" || resp["id"] == "" {
		t.Fatalf("expected fresh id, got %v", resp["id"])
	}
	if resp["status"] != "draft" {
		t.Fatalf("expected draft, got %v", resp["status"])
	}
	if _, linked := resp["jobId"]; linked {
		t.Fatal("duplicate must not stay linked to the batch")
	}
	if _, scheduled := resp["scheduledAt"]; scheduled {
		t.Fatal("duplicate must not inherit the schedule")
	}
}

func TestArticleSchedule_SetAndClear(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))

	at := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	body := fmt.Sprintf(`{"scheduledAt":%q,"platforms":["x","linkedin"]}`, at.Format(time.RFC3339))
	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/schedule", strings.NewReader(body)), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	stored, _ := env.articles.GetByID(req.Context(), "a-1")
	if stored.Status != domain.ArticleStatusScheduled {
		t.Fatalf("expected scheduled, got %s", stored.Status)
	}
	if stored.ScheduledAt == nil || !stored.ScheduledAt.Equal(at) {
		t.Fatalf("unexpected scheduled time %v", stored.ScheduledAt)
	}
	if len(stored.Platforms) != 2 {
		t.Fatalf("expected platforms, got %v", stored.Platforms)
	}

	// A null scheduledAt unschedules back to draft.
	req = asUser(httptest.NewRequest("POST", "/v1/articles/a-1/schedule", strings.NewReader(`{"scheduledAt":null}`)), "user-1")
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	stored, _ = env.articles.GetByID(req.Context(), "a-1")
	if stored.Status != domain.ArticleStatusDraft || stored.ScheduledAt != nil {
		t.Fatalf("expected unscheduled draft, got %+v", stored)
	}
}

func TestArticleSchedule_PublishedConflicts(t *testing.T) {
	env := newTestEnv()
	article := draftArticle("a-1", "user-1")
	article.Status = domain.ArticleStatusPublished
	_ = env.articles.Create(nil, article)

	body := fmt.Sprintf(`{"scheduledAt":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/schedule", strings.NewReader(body)), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 409 {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestArticlePublish_PostsToWebhook(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))
	_ = env.settings.Put(nil, &domain.Settings{UserID: "user-1", WebhookURL: "https://hooks.example.com/u1"})

	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/publish", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(env.poster.urls) != 1 || env.poster.urls[0] != "https://hooks.example.com/u1" {
		t.Fatalf("unexpected deliveries %v", env.poster.urls)
	}
	stored, _ := env.articles.GetByID(req.Context(), "a-1")
	if stored.Status != domain.ArticleStatusPublished {
		t.Fatalf("expected published, got %s", stored.Status)
	}
}

func TestArticlePublish_NoWebhookConfigured(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))

	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/publish", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 400 {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestArticlePublish_DeliveryFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))
	_ = env.settings.Put(nil, &domain.Settings{UserID: "user-1", WebhookURL: "https://hooks.example.com/u1"})
	env.poster.err = errors.New("connection refused")

	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/publish", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 502 {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	stored, _ := env.articles.GetByID(req.Context(), "a-1")
	if stored.Status != domain.ArticleStatusDraft {
		t.Fatalf("expected draft to survive failed publish, got %s", stored.Status)
	}
}

func TestArticleRegenerateText(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))
	env.gen.rewrite = &genai.TextRewrite{Title: "Fresh Title", Content: "Fresh body"}

	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/regenerate-text", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	stored, _ := env.articles.GetByID(req.Context(), "a-1")
	if stored.Title != "Fresh Title" || stored.Content != "Fresh body" {
		t.Fatalf("unexpected stored article %+v", stored)
	}
	// The image half is untouched by a text regeneration.
	if stored.ImagePrompt != "a sunrise" {
		t.Fatalf("image prompt should be untouched, got %q", stored.ImagePrompt)
	}
}

func TestArticleRegenerateText_ProviderFailure(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))
	env.gen.err = fmt.Errorf("%w: overloaded", domain.ErrProvider)

	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/regenerate-text", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 502 {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	stored, _ := env.articles.GetByID(req.Context(), "a-1")
	if stored.Title != "Original" {
		t.Fatalf("failed regeneration must not change the article, got %q", stored.Title)
	}
}

func TestArticleRegenerateImagePrompt(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "user-1"))
	env.gen.prompt = "a golden sunset, cinematic"

	req := asUser(httptest.NewRequest("POST", "/v1/articles/a-1/regenerate-image-prompt", nil), "user-1")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	stored, _ := env.articles.GetByID(req.Context(), "a-1")
	if stored.ImagePrompt != "a golden sunset, cinematic" {
		t.Fatalf("unexpected prompt %q", stored.ImagePrompt)
	}
}

func TestArticleGet_HidesForeignArticles(t *testing.T) {
	env := newTestEnv()
	_ = env.articles.Create(nil, draftArticle("a-1", "owner"))

	req := asUser(httptest.NewRequest("GET", "/v1/articles/a-1", nil), "intruder")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != 404 {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
