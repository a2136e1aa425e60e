package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	notification "esante-monitoring/internal/notification/domain"

	"github.com/go-resty/resty/v2"
)

const defaultProviderTimeout = 10 * time.Second

type smsRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// SMS posts notifications to an HTTP SMS gateway.
type SMS struct {
	http     *resty.Client
	endpoint string
	token    string
	sender   string
	resolver ContactResolver
}

// SMSOption configures the SMS channel.
type SMSOption func(*SMS)

// WithSMSResolver overrides the phone number resolver.
func WithSMSResolver(resolver ContactResolver) SMSOption {
	return func(s *SMS) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

// WithSMSTimeout overrides the gateway request timeout.
func WithSMSTimeout(timeout time.Duration) SMSOption {
	return func(s *SMS) {
		if timeout > 0 {
			s.http.SetTimeout(timeout)
		}
	}
}

// NewSMS constructs an SMS channel for the gateway endpoint.
func NewSMS(endpoint, token, sender string, opts ...SMSOption) (*SMS, error) {
	if endpoint == "" {
		return nil, errors.New("sms channel: empty gateway url")
	}
	s := &SMS{
		http: resty.New().
			SetTimeout(defaultProviderTimeout).
			SetHeader("Accept", "application/json"),
		endpoint: endpoint,
		token:    token,
		sender:   sender,
		resolver: IdentityResolver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name implements Channel.
func (s *SMS) Name() notification.Channel { return notification.ChannelSMS }

// Send implements Channel.
func (s *SMS) Send(ctx context.Context, n notification.Notification) error {
	to, err := s.resolver.Resolve(ctx, n.RecipientID, notification.ChannelSMS)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	req := s.http.R().
		SetContext(ctx).
		SetBody(smsRequest{From: s.sender, To: to, Body: n.Title + ": " + n.Content})
	if s.token != "" {
		req.SetAuthToken(s.token)
	}
	resp, err := req.Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms: gateway returned %d", resp.StatusCode())
	}
	return nil
}
