package channel

import (
	"context"
	"errors"
	"strings"

	notification "esante-monitoring/internal/notification/domain"
)

// Channel delivers a notification through one provider.
// A nil error means the provider accepted the message.
type Channel interface {
	Name() notification.Channel
	Send(ctx context.Context, n notification.Notification) error
}

// ContactResolver maps a recipient to the provider address for a channel
// (email address, phone number, device token).
type ContactResolver interface {
	Resolve(ctx context.Context, recipientID string, ch notification.Channel) (string, error)
}

// ContactResolverFunc adapts a function to ContactResolver.
type ContactResolverFunc func(ctx context.Context, recipientID string, ch notification.Channel) (string, error)

// Resolve implements ContactResolver.
func (f ContactResolverFunc) Resolve(ctx context.Context, recipientID string, ch notification.Channel) (string, error) {
	return f(ctx, recipientID, ch)
}

// ErrNoContact indicates the recipient has no address for a channel.
var ErrNoContact = errors.New("channel: no contact for recipient")

// IdentityResolver uses the recipient id itself as the address.
// Email channels additionally require it to look like an email address.
type IdentityResolver struct{}

// Resolve implements ContactResolver.
func (IdentityResolver) Resolve(_ context.Context, recipientID string, ch notification.Channel) (string, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return "", ErrNoContact
	}
	if ch == notification.ChannelEmail && !strings.Contains(recipientID, "@") {
		return "", ErrNoContact
	}
	return recipientID, nil
}
