package notification

import (
	"fmt"
	"strings"
)

// Channel names a delivery capability.
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// ParseChannel parses a channel name, case-insensitively.
func ParseChannel(value string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(value)))
	switch ch {
	case ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush:
		return ch, nil
	default:
		return "", fmt.Errorf("%w: unknown channel %q", ErrValidation, value)
	}
}

// Severity grades a notification. Empty parses to INFO.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityAlert    Severity = "ALERT"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity parses a severity, defaulting to INFO.
func ParseSeverity(value string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(value)))
	switch sev {
	case "":
		return SeverityInfo, nil
	case SeverityInfo, SeverityAlert, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("%w: unknown severity %q", ErrValidation, value)
	}
}

// Status is the aggregate state of a notification.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusSent          Status = "SENT"
	StatusPartiallySent Status = "PARTIALLY_SENT"
	StatusFailed        Status = "FAILED"
	StatusRead          Status = "READ"
)

// ParseStatus parses an optional status filter. Empty means no filter.
func ParseStatus(value string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(value)))
	switch st {
	case "", StatusPending, StatusSent, StatusPartiallySent, StatusFailed, StatusRead:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, value)
	}
}

// DeliveryStatus is the state of one channel attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
)
