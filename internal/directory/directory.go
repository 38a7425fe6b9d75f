// Package directory resolves a user id to a channel-specific recipient
// address by querying the external user directory, with a short-lived
// cache in front of it.
package directory

import (
	"context"

	"github.com/notifyhub/dispatch/internal/domain"
)

// RecipientInfo is the directory's view of a user's reachable addresses.
type RecipientInfo struct {
	Email     string `json:"email"`
	PushToken string `json:"push_token"`
}

// Resolver turns a user id into the recipient address for a channel.
type Resolver interface {
	// Resolve returns the channel-appropriate address. Errors:
	// domain.ErrUserNotFound when the directory has no such user,
	// domain.ErrServiceUnavailable when the directory cannot be reached,
	// domain.ErrNoEmailRecipient / domain.ErrNoPushRecipient when the user
	// exists but the selected field is absent.
	Resolve(ctx context.Context, userID string, channel domain.Channel) (string, error)
}

// pick applies channel-specific field selection.
func pick(info *RecipientInfo, channel domain.Channel) (string, error) {
	switch channel {
	case domain.ChannelEmail:
		if info.Email == "" {
			return "", domain.ErrNoEmailRecipient
		}
		return info.Email, nil
	case domain.ChannelPush:
		if info.PushToken == "" {
			return "", domain.ErrNoPushRecipient
		}
		return info.PushToken, nil
	default:
		return "", domain.ErrInvalidChannel
	}
}
