package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/koopa0/docpipe/internal/log"
)

func newTestClient(t *testing.T, limiter *rate.Limiter) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		APIKey:        "test-key",
		Model:         "gemini-2.5-flash",
		EmbedderModel: "gemini-embedding-001",
		EmbeddingDim:  768,
		RateLimiter:   limiter,
	}, log.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewDefaultsRateLimiter(t *testing.T) {
	c := newTestClient(t, nil)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(10), c.limiter.Limit())
	assert.Equal(t, 30, c.limiter.Burst())
}

func TestEmbedRespectsRateLimiter(t *testing.T) {
	// A zero-burst limiter can never admit a request, so the call fails at
	// the limiter before reaching the API.
	c := newTestClient(t, rate.NewLimiter(0, 0))

	_, err := c.Embed(context.Background(), []string{"some text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestGenerateRespectsRateLimiter(t *testing.T) {
	c := newTestClient(t, rate.NewLimiter(0, 0))

	_, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestEmbedEmptyInput(t *testing.T) {
	c := newTestClient(t, rate.NewLimiter(0, 0))

	// No texts means no API call and no limiter draw.
	vectors, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestGenerateRequiresUserMessage(t *testing.T) {
	c := newTestClient(t, nil)

	_, err := c.Generate(context.Background(), []Message{{Role: RoleSystem, Text: "be brief"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user message")
}
