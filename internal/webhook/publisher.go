package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"contentforge/internal/infra"
)

// Payload is the body POSTed to a configured platform webhook.
type Payload struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// Publisher delivers articles to per-owner webhook endpoints. A non-2xx
// response is a publish failure surfaced to the caller; it never touches job
// state.
type Publisher struct {
	client *resty.Client
	logger infra.Logger
}

// NewPublisher builds a publisher with retry-free delivery semantics. The
// scheduled-post checker decides what happens to failed deliveries; the
// publisher itself reports one attempt.
func NewPublisher(timeout time.Duration, logger infra.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Publisher{client: client, logger: logger}
}

// Post delivers the payload to the given webhook URL.
func (p *Publisher) Post(ctx context.Context, url string, payload Payload) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("webhook url is empty")
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if !resp.IsSuccess() {
		body := strings.TrimSpace(string(resp.Body()))
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode(), body)
	}

	p.logger.Debug().Str("url", url).Str("title", payload.Title).Msg("webhook: delivered")
	return nil
}
