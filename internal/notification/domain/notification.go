package notification

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Notification is one logical message to a recipient, fanned out across channels.
// It owns its deliveries.
type Notification struct {
	ID            string     `json:"id"`
	RecipientID   string     `json:"recipientId"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Severity      Severity   `json:"severity"`
	Status        Status     `json:"status"`
	CorrelationID string     `json:"correlationId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	SentAt        *time.Time `json:"sentAt"`
	ReadAt        *time.Time `json:"readAt"`
	Deliveries    []Delivery `json:"deliveries"`
}

// Draft describes a notification to create.
type Draft struct {
	RecipientID   string
	Title         string
	Content       string
	Severity      Severity
	Channels      []Channel
	CorrelationID string
}

// Validate checks recipient and channels and returns the channels with
// duplicates collapsed to their first occurrence.
func (d Draft) Validate() ([]Channel, error) {
	if strings.TrimSpace(d.RecipientID) == "" {
		return nil, fmt.Errorf("%w: recipientId is required", ErrValidation)
	}
	if len(d.Channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", ErrValidation)
	}
	seen := make(map[Channel]struct{}, len(d.Channels))
	channels := make([]Channel, 0, len(d.Channels))
	for _, requested := range d.Channels {
		ch, err := ParseChannel(string(requested))
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		channels = append(channels, ch)
	}
	return channels, nil
}

// New builds a pending notification with one pending delivery per channel, in order.
func New(id string, draft Draft, newID func() string, now time.Time) (*Notification, error) {
	if id == "" || newID == nil {
		return nil, errors.New("notification: missing id source")
	}
	channels, err := draft.Validate()
	if err != nil {
		return nil, err
	}
	severity := draft.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	n := &Notification{
		ID:            id,
		RecipientID:   draft.RecipientID,
		Title:         draft.Title,
		Content:       draft.Content,
		Severity:      severity,
		Status:        StatusPending,
		CorrelationID: strings.TrimSpace(draft.CorrelationID),
		CreatedAt:     now.UTC(),
		Deliveries:    make([]Delivery, 0, len(channels)),
	}
	for _, ch := range channels {
		n.Deliveries = append(n.Deliveries, Delivery{
			ID:             newID(),
			NotificationID: id,
			Channel:        ch,
			Status:         DeliveryPending,
		})
	}
	return n, nil
}

// Finalize sets the aggregate status after a dispatch pass.
func (n *Notification) Finalize(now time.Time) {
	n.Status = AggregateStatus(n.Deliveries)
	if n.Status == StatusSent {
		at := now.UTC()
		n.SentAt = &at
	}
}

// MarkRead flags the notification as read by its recipient.
func (n *Notification) MarkRead(now time.Time) {
	at := now.UTC()
	n.Status = StatusRead
	n.ReadAt = &at
}
