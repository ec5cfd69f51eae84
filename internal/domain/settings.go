package domain

import "time"

// Settings holds per-owner generation and integration configuration. The job
// client reads these when assembling a job; the scheduled-post checker and
// publish action read the webhook URL.
type Settings struct {
	UserID             string
	SystemPrompt       string
	ContentLanguage    string
	VisionSystemPrompt string
	ImagePromptSuffix  string
	ImageAspectRatio   string
	WebhookURL         string
	UpdatedAt          time.Time
}

// DefaultSettings returns the configuration applied to owners who have never
// saved their own.
func DefaultSettings(userID string) *Settings {
	return &Settings{
		UserID:           userID,
		SystemPrompt:     "You are an expert social media manager specializing in viral content.",
		ContentLanguage:  "en",
		ImageAspectRatio: "1:1",
	}
}
