package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a thin facade over the Gemini generative API. One authenticated
// client is constructed per process and injected into every consumer; the
// underlying http.Client is reused across calls.
type Client struct {
	apiKey     string
	baseURL    string
	textModel  string
	imageModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// ArticleDraft is the schema-constrained structured payload the text and
// vision endpoints must return. All three fields are required; an absent or
// unparsable payload is a provider error.
type ArticleDraft struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	ImagePrompt string `json:"imagePrompt"`
}

// ImageAsset is the normalized representation of one generated image.
type ImageAsset struct {
	Data   []byte
	Format string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int             `json:"candidateCount,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiGenerateImagesRequest struct {
	Instances  []geminiImageInstance `json:"instances"`
	Parameters geminiImageParameters `json:"parameters"`
}

type geminiImageInstance struct {
	Prompt string `json:"prompt"`
}

type geminiImageParameters struct {
	SampleCount    int    `json:"sampleCount"`
	OutputMimeType string `json:"outputMimeType,omitempty"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
}

type geminiGenerateImagesResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MimeType           string `json:"mimeType"`
	} `json:"predictions"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// articleSchema constrains structured responses to the article draft shape.
var articleSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "title": {"type": "STRING", "description": "A catchy and engaging title for the social media post."},
    "content": {"type": "STRING", "description": "The main body of the post, formatted for readability."},
    "imagePrompt": {"type": "STRING", "description": "A detailed, creative prompt for an AI image generator."}
  },
  "required": ["title", "content", "imagePrompt"]
}`)

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with a sensible timeout will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	textModel := opts.TextModel
	if textModel == "" {
		textModel = "gemini-2.5-pro"
	}
	imageModel := opts.ImageModel
	if imageModel == "" {
		imageModel = "imagen-4.0-generate-001"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		textModel:  textModel,
		imageModel: imageModel,
		httpClient: client,
		logger:     logger,
	}, nil
}

// TextModel returns the configured text model identifier.
func (c *Client) TextModel() string {
	return c.textModel
}

// GenerateArticle requests one structured article draft for the given
// instruction text.
func (c *Client) GenerateArticle(ctx context.Context, instruction, systemPrompt string) (*ArticleDraft, error) {
	payload := c.draftRequest(systemPrompt, geminiPart{Text: instruction})
	return c.generateDraft(ctx, payload)
}

// GenerateVisionArticle requests one structured article draft from raw image
// bytes plus instruction text.
func (c *Client) GenerateVisionArticle(ctx context.Context, imageData []byte, mimeType, instruction, systemPrompt string) (*ArticleDraft, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("%w: empty source image", domain.ErrProvider)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	imagePart := geminiPart{InlineData: &geminiInlineData{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(imageData),
	}}
	payload := c.draftRequest(systemPrompt, imagePart, geminiPart{Text: instruction})
	return c.generateDraft(ctx, payload)
}

// GenerateImage produces exactly one image for the given prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*ImageAsset, error) {
	payload := geminiGenerateImagesRequest{
		Instances: []geminiImageInstance{{Prompt: prompt}},
		Parameters: geminiImageParameters{
			SampleCount:    1,
			OutputMimeType: "image/jpeg",
			AspectRatio:    "1:1",
		},
	}

	var response geminiGenerateImagesResponse
	path := fmt.Sprintf("/models/%s:predict", url.PathEscape(c.imageModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}
	if len(response.Predictions) == 0 || response.Predictions[0].BytesBase64Encoded == "" {
		return nil, fmt.Errorf("%w: no image generated", domain.ErrProvider)
	}
	data, err := base64.StdEncoding.DecodeString(response.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image payload: %v", domain.ErrProvider, err)
	}
	format := response.Predictions[0].MimeType
	if format == "" {
		format = "image/jpeg"
	}

	c.logger.Debug().
		Str("model", c.imageModel).
		Int("bytes", len(data)).
		Msg("genai: generated image")

	return &ImageAsset{Data: data, Format: format}, nil
}

// FetchImage downloads a source image so it can be fed to the vision
// endpoint. Returns the bytes and the reported content type.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch image: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("%w: fetch image status %d", domain.ErrProvider, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read image: %v", domain.ErrProvider, err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return data, mime, nil
}

func (c *Client) draftRequest(systemPrompt string, parts ...geminiPart) geminiGenerateContentRequest {
	req := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   1,
			ResponseMimeType: "application/json",
			ResponseSchema:   articleSchema,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	return req
}

func (c *Client) generateDraft(ctx context.Context, payload geminiGenerateContentRequest) (*ArticleDraft, error) {
	var response geminiGenerateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.textModel))
	if err := c.invoke(ctx, path, payload, &response); err != nil {
		return nil, err
	}

	text := extractText(response)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrProvider)
	}

	draft, err := parseDraft(text)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("model", c.textModel).
		Str("title", draft.Title).
		Msg("genai: generated article draft")

	return draft, nil
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: invoke gemini: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr geminiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%w: gemini status %d: %s", domain.ErrProvider, resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("%w: gemini status %d: %s", domain.ErrProvider, resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("%w: gemini status %d", domain.ErrProvider, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode gemini response: %v", domain.ErrProvider, err)
	}
	return nil
}

func extractText(resp geminiGenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if text := strings.TrimSpace(part.Text); text != "" {
				return text
			}
		}
	}
	return ""
}

func parseDraft(text string) (*ArticleDraft, error) {
	var draft ArticleDraft
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return nil, fmt.Errorf("%w: unparsable structured response: %v", domain.ErrProvider, err)
	}
	if draft.Title == "" || draft.Content == "" || draft.ImagePrompt == "" {
		return nil, fmt.Errorf("%w: structured response missing required fields", domain.ErrProvider)
	}
	return &draft, nil
}
