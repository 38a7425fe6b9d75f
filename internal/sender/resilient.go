package sender

import (
	"context"
	"errors"

	"github.com/notifyhub/dispatch/internal/resilience"
)

// Resilient composes the retry and circuit-breaker policies around an inner
// transport: retry outermost, breaker innermost, so a tripped circuit fails
// the remaining attempts fast without touching the transport.
type Resilient struct {
	inner   Sender
	retrier *resilience.Retrier
	breaker *resilience.Breaker
}

func NewResilient(inner Sender, retrier *resilience.Retrier, breaker *resilience.Breaker) *Resilient {
	if retrier.Retryable == nil {
		retrier.Retryable = DefaultRetryable
	}
	return &Resilient{inner: inner, retrier: retrier, breaker: breaker}
}

// DefaultRetryable skips retries for permanent transport failures and for an
// open circuit: neither can succeed within the retry window.
func DefaultRetryable(err error) bool {
	return !IsFatal(err) && !errors.Is(err, resilience.ErrOpen)
}

func (r *Resilient) Send(ctx context.Context, msg *Message) error {
	return r.retrier.Do(ctx, func() error {
		return r.breaker.Do(func() error {
			return r.inner.Send(ctx, msg)
		})
	})
}

var _ Sender = (*Resilient)(nil)
