// Package gemini talks to Google's Gemini models through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"findost/internal/domain"
	"findost/internal/integrations/apikey"
)

// modelsAPI is the slice of *genai.Models the relay uses.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// StatusError carries the HTTP status of a failed Gemini API call.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatusCode() int {
	return e.Code
}

type Client struct {
	keys       apikey.Source
	httpClient *http.Client
	newModels  func(ctx context.Context, key string) (modelsAPI, error)

	mu     sync.Mutex
	key    string
	models modelsAPI
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithModels bypasses SDK client construction; used by tests.
func WithModels(m modelsAPI) Option {
	return func(c *Client) {
		c.newModels = func(context.Context, string) (modelsAPI, error) {
			return m, nil
		}
	}
}

// NewClient returns a Client whose SDK client is built on first use from the
// key the source yields, and rebuilt if that key changes.
func NewClient(keys apikey.Source, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("gemini: api key source must not be nil")
	}
	c := &Client{
		keys:       keys,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	c.newModels = c.sdkModels
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) sdkModels(ctx context.Context, key string) (modelsAPI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return client.Models, nil
}

func (c *Client) resolveModels(ctx context.Context) (modelsAPI, error) {
	key, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models != nil && c.key == key {
		return c.models, nil
	}
	m, err := c.newModels(ctx, key)
	if err != nil {
		return nil, err
	}
	c.key, c.models = key, m
	return m, nil
}

// Ready reports whether an API key can be resolved.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.keys.APIKey(ctx)
	return err
}

// Generate sends a single user prompt and returns the model's text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	return c.generate(ctx, model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		nil)
}

// Converse sends the persona as the system instruction, followed by the
// bounded history and the current message.
func (c *Client) Converse(ctx context.Context, conv domain.Conversation) (string, error) {
	contents := make([]*genai.Content, 0, len(conv.History)+1)
	for _, m := range conv.History {
		contents = append(contents, genai.NewContentFromText(m.Content, contentRole(m.Role)))
	}
	contents = append(contents, genai.NewContentFromText(conv.Message, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(conv.MaxOutputTokens),
	}
	if strings.TrimSpace(conv.SystemPrompt) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(conv.SystemPrompt, genai.RoleUser)
	}
	return c.generate(ctx, conv.Model, contents, cfg)
}

func contentRole(role string) genai.Role {
	if role == domain.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	models, err := c.resolveModels(ctx)
	if err != nil {
		return "", err
	}

	resp, err := models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", wrapAPIError(err)
	}
	return responseText(resp)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return "", errors.New("gemini: candidate has no content")
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func wrapAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{Code: apiErrPtr.Code, Err: err}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
