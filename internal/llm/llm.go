// Package llm wraps the Gemini API behind the two calls the pipelines need:
// batch text embedding and chat completion. The client is constructed from
// explicit configuration and injected; nothing here reads the environment.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Role tags a message for the model.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one role-tagged entry in a model invocation.
type Message struct {
	Role string
	Text string
}

// Config selects the models and embedding shape.
type Config struct {
	APIKey        string
	Model         string // chat model, e.g. gemini-2.5-flash
	EmbedderModel string // e.g. gemini-embedding-001
	// EmbeddingDim truncates embedder output; must match the pgvector column.
	EmbeddingDim int32

	// RateLimiter throttles API calls ahead of the provider's quota, so most
	// rate-limit pressure never turns into a retried activity failure.
	// Nil selects a default suitable for the Gemini API.
	RateLimiter *rate.Limiter
}

// Client calls the Gemini API. Safe for concurrent use.
type Client struct {
	genai   *genai.Client
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client against the Gemini API backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Client{genai: gc, cfg: cfg, limiter: limiter, logger: logger}, nil
}

// Embed returns one embedding vector per input text, truncated to the
// configured dimensionality.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	resp, err := c.genai.Models.EmbedContent(ctx, c.cfg.EmbedderModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(c.cfg.EmbeddingDim),
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Generate produces a completion for an ordered list of role-tagged messages.
// System messages are folded into the system instruction; the rest become
// user content in order.
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Text)
		default:
			contents = append(contents, genai.NewContentFromText(m.Text, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("generate requires at least one user message")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned empty completion")
	}

	c.logger.Debug("generated completion", "model", c.cfg.Model, "length", len(text))
	return text, nil
}
