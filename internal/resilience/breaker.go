package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrOpen is returned when the circuit is open and the call was not attempted.
var ErrOpen = errors.New("circuit breaker open")

// BreakerConfig parameterises a Breaker.
type BreakerConfig struct {
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the circuit from closed to open.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before admitting a
	// single half-open trial call.
	Cooldown time.Duration
}

// Breaker wraps sony/gobreaker with consecutive-failure semantics:
// CLOSED → (failures ≥ threshold) → OPEN → (after cooldown) → HALF_OPEN,
// where exactly one trial call is admitted; success closes the circuit,
// failure reopens it and restarts the cooldown.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(cfg BreakerConfig, logger *zap.Logger) *Breaker {
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // one trial call in half-open
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("circuit", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs op through the circuit. When the circuit is open (or the half-open
// trial slot is taken) it returns ErrOpen without invoking op.
func (b *Breaker) Do(op func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State exposes the current breaker state for metrics.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
