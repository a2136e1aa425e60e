package notification

import (
	"fmt"
	"time"
)

// Delivery tracks the attempt on one channel for its owning notification.
type Delivery struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"-"`
	Channel        Channel        `json:"channel"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	LastError      string         `json:"lastError,omitempty"`
	SentAt         *time.Time     `json:"sentAt"`
}

// BeginAttempt counts an attempt. Only a pending delivery can be attempted.
func (d *Delivery) BeginAttempt() error {
	if d.Status != DeliveryPending {
		return fmt.Errorf("%w: attempt on %s delivery", ErrInvalidTransition, d.Status)
	}
	d.Attempts++
	return nil
}

// MarkSent records success.
func (d *Delivery) MarkSent(at time.Time) error {
	if d.Status != DeliveryPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, DeliverySent)
	}
	at = at.UTC()
	d.Status = DeliverySent
	d.SentAt = &at
	d.LastError = ""
	return nil
}

// MarkFailed records failure with its reason.
func (d *Delivery) MarkFailed(reason string) error {
	if d.Status != DeliveryPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, DeliveryFailed)
	}
	if reason == "" {
		reason = "send failed"
	}
	d.Status = DeliveryFailed
	d.LastError = reason
	d.SentAt = nil
	return nil
}

// AggregateStatus derives a notification status from its deliveries:
// SENT iff every delivery is SENT, PARTIALLY_SENT iff at least one SENT and one FAILED,
// FAILED iff none is SENT. Deliveries not yet attempted keep the notification PENDING.
func AggregateStatus(deliveries []Delivery) Status {
	var sent, failed int
	for _, d := range deliveries {
		switch d.Status {
		case DeliverySent:
			sent++
		case DeliveryFailed:
			failed++
		}
	}
	switch {
	case sent == 0:
		return StatusFailed
	case failed > 0:
		return StatusPartiallySent
	case sent == len(deliveries):
		return StatusSent
	default:
		return StatusPending
	}
}
