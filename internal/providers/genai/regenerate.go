package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"contentforge/internal/domain"
)

var textOnlySchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "title": {"type": "STRING"},
    "content": {"type": "STRING"}
  },
  "required": ["title", "content"]
}`)

var imagePromptSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "imagePrompt": {"type": "STRING"}
  },
  "required": ["imagePrompt"]
}`)

// TextRewrite is the reduced structured payload used when regenerating only
// the textual half of an article.
type TextRewrite struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// RegenerateText produces a fresh title and body for an existing article.
func (c *Client) RegenerateText(ctx context.Context, article *domain.Article, systemPrompt string) (*TextRewrite, error) {
	topic := article.Topic
	if topic == "" {
		topic = "not specified"
	}
	instruction := fmt.Sprintf(
		"Regenerate the title and content for the following social media post.\nOriginal Title: %s\nOriginal Content: %s\nTopic (optional): %s",
		article.Title, article.Content, topic)

	payload := c.draftRequest(systemPrompt, geminiPart{Text: instruction})
	payload.GenerationConfig.ResponseSchema = textOnlySchema

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.textModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}
	text := extractText(response)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrProvider)
	}
	var rewrite TextRewrite
	if err := json.Unmarshal([]byte(text), &rewrite); err != nil {
		return nil, fmt.Errorf("%w: unparsable structured response: %v", domain.ErrProvider, err)
	}
	if rewrite.Title == "" || rewrite.Content == "" {
		return nil, fmt.Errorf("%w: structured response missing required fields", domain.ErrProvider)
	}
	return &rewrite, nil
}

// RegenerateImagePrompt produces a fresh image prompt for an existing
// article, with the owner's configured suffix appended.
func (c *Client) RegenerateImagePrompt(ctx context.Context, article *domain.Article, systemPrompt, suffix string) (string, error) {
	topic := article.Topic
	if topic == "" {
		topic = "not specified"
	}
	original := article.ImagePrompt
	if original == "" {
		original = "not specified"
	}
	instruction := fmt.Sprintf(
		"Regenerate the image prompt for the following social media post.\nTitle: %s\nContent: %s\nOriginal Image Prompt: %s\nTopic (optional): %s\n\nCreate a descriptive and detailed image prompt that captures the essence of this post.",
		article.Title, article.Content, original, topic)

	payload := c.draftRequest(systemPrompt, geminiPart{Text: instruction})
	payload.GenerationConfig.ResponseSchema = imagePromptSchema

	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.textModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return "", err
	}
	text := extractText(response)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrProvider)
	}
	var parsed struct {
		ImagePrompt string `json:"imagePrompt"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return "", fmt.Errorf("%w: unparsable structured response: %v", domain.ErrProvider, err)
	}
	prompt := strings.TrimSpace(parsed.ImagePrompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: structured response missing image prompt", domain.ErrProvider)
	}
	return AppendSuffix(prompt, suffix), nil
}

// AppendSuffix joins the owner's configured image-prompt suffix onto a
// generated prompt.
func AppendSuffix(prompt, suffix string) string {
	prompt = strings.TrimSpace(prompt)
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return prompt
	}
	return prompt + ", " + suffix
}
