package channel

import (
	"context"
	"errors"
	"fmt"

	notification "esante-monitoring/internal/notification/domain"

	"github.com/mrz1836/postmark"
)

// PostmarkSender is the subset of the Postmark client used by Email.
type PostmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Email delivers notifications through Postmark.
type Email struct {
	client   PostmarkSender
	from     string
	resolver ContactResolver
}

// EmailOption configures the email channel.
type EmailOption func(*Email)

// WithEmailResolver overrides the recipient address resolver.
func WithEmailResolver(resolver ContactResolver) EmailOption {
	return func(e *Email) {
		if resolver != nil {
			e.resolver = resolver
		}
	}
}

// WithPostmarkSender overrides the Postmark client.
func WithPostmarkSender(client PostmarkSender) EmailOption {
	return func(e *Email) {
		if client != nil {
			e.client = client
		}
	}
}

// NewEmail constructs a Postmark-backed email channel.
func NewEmail(serverToken, accountToken, from string, opts ...EmailOption) (*Email, error) {
	if from == "" {
		return nil, errors.New("email channel: empty sender")
	}
	e := &Email{from: from, resolver: IdentityResolver{}}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		if serverToken == "" {
			return nil, errors.New("email channel: empty postmark server token")
		}
		e.client = postmark.NewClient(serverToken, accountToken)
	}
	return e, nil
}

// Name implements Channel.
func (e *Email) Name() notification.Channel { return notification.ChannelEmail }

// Send implements Channel.
func (e *Email) Send(ctx context.Context, n notification.Notification) error {
	to, err := e.resolver.Resolve(ctx, n.RecipientID, notification.ChannelEmail)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	resp, err := e.client.SendEmail(ctx, postmark.Email{
		From:     e.from,
		To:       to,
		Subject:  n.Title,
		TextBody: n.Content,
		Tag:      string(n.Severity),
	})
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("email: postmark error %d: %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
