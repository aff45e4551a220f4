// Package ollama is a client for the embedding endpoints of the Ollama HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "all-minilm:l6-v2"
	DefaultTimeout = 30 * time.Second

	pathEmbeddings = "/api/embeddings"
	pathTags       = "/api/tags"
)

// EmbedClient turns text into vectors with one Ollama model.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// Option configures an EmbedClient.
type Option func(*EmbedClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *EmbedClient) { e.client = c }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *EmbedClient) { e.client.Timeout = d }
}

// NewEmbedClient creates an Ollama embedding client. Empty arguments fall
// back to DefaultURL and DefaultModel.
func NewEmbedClient(baseURL, model string, opts ...Option) *EmbedClient {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := &EmbedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the model name sent with every request.
func (c *EmbedClient) Model() string { return c.model }

type embedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResp struct {
	Embedding []float32 `json:"embedding"`
}

type tagsResp struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Embed returns the embedding of text.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedReq{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathEmbeddings, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, errorBody(resp.Body))
	}

	var out embedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding for model %s", c.model)
	}
	return out.Embedding, nil
}

// Ping checks that the server answers.
func (c *EmbedClient) Ping(ctx context.Context) error {
	_, err := c.tags(ctx)
	return err
}

// HasModel reports whether the configured model is pulled on the server.
// A model without a tag matches its ":latest" variant.
func (c *EmbedClient) HasModel(ctx context.Context) (bool, error) {
	tags, err := c.tags(ctx)
	if err != nil {
		return false, err
	}
	want := c.model
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range tags.Models {
		if m.Name == c.model || m.Name == want {
			return true, nil
		}
	}
	return false, nil
}

func (c *EmbedClient) tags(ctx context.Context) (tagsResp, error) {
	var out tagsResp
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathTags, nil)
	if err != nil {
		return out, fmt.Errorf("ollama tags: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("ollama tags: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("ollama tags decode: %w", err)
	}
	return out, nil
}

func errorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return fmt.Sprintf("(unreadable body: %v)", err)
	}
	return strings.TrimSpace(string(b))
}
