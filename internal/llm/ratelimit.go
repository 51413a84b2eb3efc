package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedGenerator spaces out calls to stay under a provider's
// requests-per-minute allowance (Gemini free tier: 15 RPM).
type RateLimitedGenerator struct {
	next    TextGenerator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator wraps next. rpm <= 0 disables limiting.
func NewRateLimitedGenerator(next TextGenerator, rpm int) *RateLimitedGenerator {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Every(time.Minute / time.Duration(rpm))
	}
	return &RateLimitedGenerator{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// GenerateContent waits for a token, then delegates.
func (g *RateLimitedGenerator) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return ContentResponse{}, err
	}
	return g.next.GenerateContent(ctx, prompt)
}
