package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct{ calls int }

func (g *countingGenerator) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	g.calls++
	return ContentResponse{Content: prompt}, nil
}

func TestRateLimitedGenerator(t *testing.T) {
	next := &countingGenerator{}
	g := NewRateLimitedGenerator(next, 0)

	for i := 0; i < 5; i++ {
		resp, err := g.GenerateContent(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "hi", resp.Content)
	}
	assert.Equal(t, 5, next.calls)
}

func TestRateLimitedGeneratorHonoursContext(t *testing.T) {
	next := &countingGenerator{}
	g := NewRateLimitedGenerator(next, 1)

	_, err := g.GenerateContent(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.GenerateContent(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, next.calls)
}
