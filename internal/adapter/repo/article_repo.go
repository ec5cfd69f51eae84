package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contentforge/internal/domain"
)

// ArticleRepositoryPG implements domain.ArticleRepository on PostgreSQL.
type ArticleRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewArticleRepository creates a new article repository backed by PostgreSQL.
func NewArticleRepository(pool *pgxpool.Pool) *ArticleRepositoryPG {
	return &ArticleRepositoryPG{pool: pool}
}

const articleColumns = `id, user_id, job_id, title, content, image_url, image_prompt, topic, mode, status, scheduled_at, platforms, created_at, updated_at`

// Create inserts a new article.
func (r *ArticleRepositoryPG) Create(ctx context.Context, article *domain.Article) error {
	query := `
INSERT INTO articles (id, user_id, job_id, title, content, image_url, image_prompt, topic, mode, status, scheduled_at, platforms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
`
	_, err := r.pool.Exec(ctx, query,
		article.ID,
		article.UserID,
		nullable(article.JobID),
		article.Title,
		article.Content,
		nullable(article.ImageURL),
		nullable(article.ImagePrompt),
		nullable(article.Topic),
		article.Mode,
		article.Status,
		article.ScheduledAt,
		article.Platforms,
	)
	return err
}

// GetByID fetches one article.
func (r *ArticleRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1;`, id)
	return scanArticle(row)
}

// ListByUser returns the owner's most recent articles.
func (r *ArticleRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// ListByJob returns a job's articles in item order. Insertion order matches
// item order, so created_at gives the per-job sequence.
func (r *ArticleRepositoryPG) ListByJob(ctx context.Context, jobID string) ([]domain.Article, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE job_id = $1 ORDER BY created_at ASC;`,
		jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// ListDue returns scheduled articles whose scheduled time has passed.
func (r *ArticleRepositoryPG) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
SELECT `+articleColumns+`
FROM articles
WHERE status = 'scheduled' AND scheduled_at <= $1
ORDER BY scheduled_at ASC
LIMIT $2;
`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArticles(rows)
}

// Update rewrites the mutable fields of an article.
func (r *ArticleRepositoryPG) Update(ctx context.Context, article *domain.Article) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE articles
SET title = $3,
    content = $4,
    image_url = $5,
    image_prompt = $6,
    status = $7,
    scheduled_at = $8,
    platforms = $9,
    updated_at = now()
WHERE id = $1 AND user_id = $2;
`,
		article.ID,
		article.UserID,
		article.Title,
		article.Content,
		nullable(article.ImageURL),
		nullable(article.ImagePrompt),
		article.Status,
		article.ScheduledAt,
		article.Platforms,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes an owner's article.
func (r *ArticleRepositoryPG) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM articles WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collectArticles(rows pgx.Rows) ([]domain.Article, error) {
	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

func scanArticle(row rowScanner) (*domain.Article, error) {
	var article domain.Article
	var jobID, imageURL, imagePrompt, topic *string
	if err := row.Scan(
		&article.ID,
		&article.UserID,
		&jobID,
		&article.Title,
		&article.Content,
		&imageURL,
		&imagePrompt,
		&topic,
		&article.Mode,
		&article.Status,
		&article.ScheduledAt,
		&article.Platforms,
		&article.CreatedAt,
		&article.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	article.JobID = deref(jobID)
	article.ImageURL = deref(imageURL)
	article.ImagePrompt = deref(imagePrompt)
	article.Topic = deref(topic)
	return &article, nil
}
