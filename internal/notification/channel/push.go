package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	notification "esante-monitoring/internal/notification/domain"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

const pushIssuer = "esante-monitoring"

type pushRequest struct {
	Token          string            `json:"token"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Priority       string            `json:"priority"`
	NotificationID string            `json:"notificationId"`
	Data           map[string]string `json:"data,omitempty"`
}

// Push posts notifications to a push provider, authenticated with a
// short-lived HS256 token.
type Push struct {
	http     *resty.Client
	endpoint string
	secret   []byte
	ttl      time.Duration
	resolver ContactResolver
	now      func() time.Time
}

// PushOption configures the push channel.
type PushOption func(*Push)

// WithPushResolver overrides the device token resolver.
func WithPushResolver(resolver ContactResolver) PushOption {
	return func(p *Push) {
		if resolver != nil {
			p.resolver = resolver
		}
	}
}

// WithPushTimeout overrides the provider request timeout.
func WithPushTimeout(timeout time.Duration) PushOption {
	return func(p *Push) {
		if timeout > 0 {
			p.http.SetTimeout(timeout)
		}
	}
}

// NewPush constructs a push channel.
func NewPush(endpoint, secret string, ttl time.Duration, opts ...PushOption) (*Push, error) {
	if endpoint == "" {
		return nil, errors.New("push channel: empty provider url")
	}
	if secret == "" {
		return nil, errors.New("push channel: empty provider secret")
	}
	if ttl <= 0 {
		return nil, errors.New("push channel: token ttl must be positive")
	}
	p := &Push{
		http: resty.New().
			SetTimeout(defaultProviderTimeout).
			SetHeader("Accept", "application/json"),
		endpoint: endpoint,
		secret:   []byte(secret),
		ttl:      ttl,
		resolver: IdentityResolver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name implements Channel.
func (p *Push) Name() notification.Channel { return notification.ChannelPush }

// Send implements Channel.
func (p *Push) Send(ctx context.Context, n notification.Notification) error {
	device, err := p.resolver.Resolve(ctx, n.RecipientID, notification.ChannelPush)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	token, err := p.signToken(n.RecipientID)
	if err != nil {
		return fmt.Errorf("push: sign token: %w", err)
	}
	body := pushRequest{
		Token:          device,
		Title:          n.Title,
		Body:           n.Content,
		Priority:       pushPriority(n.Severity),
		NotificationID: n.ID,
	}
	if n.CorrelationID != "" {
		body.Data = map[string]string{"correlationId": n.CorrelationID}
	}
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		Post(p.endpoint)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push: provider returned %d", resp.StatusCode())
	}
	return nil
}

func (p *Push) signToken(subject string) (string, error) {
	now := p.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    pushIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

func pushPriority(severity notification.Severity) string {
	if severity == notification.SeverityCritical {
		return "high"
	}
	return "normal"
}
