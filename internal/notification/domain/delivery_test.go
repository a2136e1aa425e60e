package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deliveries(statuses ...DeliveryStatus) []Delivery {
	out := make([]Delivery, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, Delivery{Status: st})
	}
	return out
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		name string
		in   []Delivery
		want Status
	}{
		{"all sent", deliveries(DeliverySent, DeliverySent), StatusSent},
		{"single sent", deliveries(DeliverySent), StatusSent},
		{"mixed", deliveries(DeliverySent, DeliveryFailed), StatusPartiallySent},
		{"mixed order", deliveries(DeliveryFailed, DeliverySent, DeliverySent), StatusPartiallySent},
		{"all failed", deliveries(DeliveryFailed, DeliveryFailed), StatusFailed},
		{"no deliveries", nil, StatusFailed},
		{"untouched", deliveries(DeliveryPending), StatusFailed},
		{"sent with pending", deliveries(DeliverySent, DeliveryPending), StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AggregateStatus(tc.in))
		})
	}
}

func TestDeliveryTransitions(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	d := Delivery{Channel: ChannelEmail, Status: DeliveryPending}
	require.NoError(t, d.BeginAttempt())
	assert.Equal(t, 1, d.Attempts)
	require.NoError(t, d.MarkSent(now))
	assert.Equal(t, DeliverySent, d.Status)
	require.NotNil(t, d.SentAt)
	assert.Empty(t, d.LastError)

	assert.ErrorIs(t, d.MarkFailed("late"), ErrInvalidTransition)
	assert.ErrorIs(t, d.BeginAttempt(), ErrInvalidTransition)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, DeliverySent, d.Status)

	failed := Delivery{Channel: ChannelSMS, Status: DeliveryPending}
	require.NoError(t, failed.BeginAttempt())
	require.NoError(t, failed.MarkFailed("gateway 503"))
	assert.Equal(t, DeliveryFailed, failed.Status)
	assert.Equal(t, "gateway 503", failed.LastError)
	assert.Nil(t, failed.SentAt)
	assert.ErrorIs(t, failed.MarkSent(now), ErrInvalidTransition)
}

func TestMarkFailedDefaultsReason(t *testing.T) {
	d := Delivery{Status: DeliveryPending}
	require.NoError(t, d.MarkFailed(""))
	assert.NotEmpty(t, d.LastError)
}
