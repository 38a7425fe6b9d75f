// Package sender holds the per-channel transport adapters and their shared
// failure taxonomy. Every adapter implements the same Send contract so retry
// and circuit-breaker policies compose around any of them.
package sender

import (
	"context"
	"errors"
)

// Message is the rendered content handed to a transport.
// Subject doubles as the push notification title.
type Message struct {
	Recipient string
	Subject   string
	Body      string

	// Push-only extras. Data values must all be strings: push transports
	// reject non-string auxiliary payload values.
	Data     map[string]string
	ImageURL string
}

// Sender delivers one rendered message over a channel transport.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Transport failure taxonomy. Fatal errors describe conditions that cannot
// heal with time (bad credentials, permanently invalid token); retrying them
// only burns the retry budget.
var (
	ErrAuthentication    = errors.New("transport authentication failed")
	ErrRecipientRefused  = errors.New("recipient refused by transport")
	ErrUnregisteredToken = errors.New("device token is unregistered")
	ErrSenderMismatch    = errors.New("sender id mismatch for device token")
)

// IsFatal reports whether err is a permanent transport failure that should
// dead-letter immediately instead of entering the retry path.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrUnregisteredToken)
}
