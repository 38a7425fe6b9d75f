package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/dispatch/internal/domain"
)

// ChannelLimiters holds one token bucket limiter per channel type, throttling
// how fast workers hit the downstream provider (SMTP relay, push gateway).
// This is separate from the gateway's per-user admission window: it protects
// the provider, not the user quota. Burst is set equal to the rate so no
// extra burst capacity accumulates beyond the configured per-second maximum.
type ChannelLimiters struct {
	limiters map[domain.Channel]*rate.Limiter
}

// New creates a ChannelLimiters with ratePerSec tokens per second per channel.
func New(ratePerSec int) *ChannelLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec

	return &ChannelLimiters{
		limiters: map[domain.Channel]*rate.Limiter{
			domain.ChannelEmail: rate.NewLimiter(r, burst),
			domain.ChannelPush:  rate.NewLimiter(r, burst),
		},
	}
}

// Wait blocks until the channel's limiter grants a token.
// Called by each worker immediately before invoking the sender.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (cl *ChannelLimiters) Wait(ctx context.Context, ch domain.Channel) error {
	return cl.limiters[ch].Wait(ctx)
}
