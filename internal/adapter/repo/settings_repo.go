package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contentforge/internal/domain"
)

// SettingsRepositoryPG implements domain.SettingsRepository on PostgreSQL.
type SettingsRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new settings repository backed by PostgreSQL.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepositoryPG {
	return &SettingsRepositoryPG{pool: pool}
}

// Get loads the owner's settings, falling back to defaults for owners who
// never saved any.
func (r *SettingsRepositoryPG) Get(ctx context.Context, userID string) (*domain.Settings, error) {
	row := r.pool.QueryRow(ctx, `
SELECT user_id, system_prompt, content_language, vision_system_prompt, image_prompt_suffix, image_aspect_ratio, webhook_url, updated_at
FROM user_settings
WHERE user_id = $1;
`, userID)

	var s domain.Settings
	if err := row.Scan(
		&s.UserID,
		&s.SystemPrompt,
		&s.ContentLanguage,
		&s.VisionSystemPrompt,
		&s.ImagePromptSuffix,
		&s.ImageAspectRatio,
		&s.WebhookURL,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultSettings(userID), nil
		}
		return nil, err
	}
	return &s, nil
}

// Put upserts the owner's settings.
func (r *SettingsRepositoryPG) Put(ctx context.Context, settings *domain.Settings) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO user_settings (user_id, system_prompt, content_language, vision_system_prompt, image_prompt_suffix, image_aspect_ratio, webhook_url, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (user_id) DO UPDATE
SET system_prompt = EXCLUDED.system_prompt,
    content_language = EXCLUDED.content_language,
    vision_system_prompt = EXCLUDED.vision_system_prompt,
    image_prompt_suffix = EXCLUDED.image_prompt_suffix,
    image_aspect_ratio = EXCLUDED.image_aspect_ratio,
    webhook_url = EXCLUDED.webhook_url,
    updated_at = now();
`,
		settings.UserID,
		settings.SystemPrompt,
		settings.ContentLanguage,
		settings.VisionSystemPrompt,
		settings.ImagePromptSuffix,
		settings.ImageAspectRatio,
		settings.WebhookURL,
	)
	return err
}
