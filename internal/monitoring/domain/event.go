package monitoring

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventStatus is the lifecycle state of a monitoring event.
type EventStatus string

const (
	StatusOpen         EventStatus = "OPEN"
	StatusAcknowledged EventStatus = "ACKNOWLEDGED"
	StatusResolved     EventStatus = "RESOLVED"
)

// ParseEventStatus parses an optional status filter. Empty means no filter.
func ParseEventStatus(value string) (EventStatus, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	switch EventStatus(value) {
	case "":
		return "", nil
	case StatusOpen, StatusAcknowledged, StatusResolved:
		return EventStatus(value), nil
	default:
		return "", fmt.Errorf("%w: unknown event status %q", ErrValidation, value)
	}
}

// Severity grades an event. INFO < ALERT < CRITICAL.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityAlert    Severity = "ALERT"
	SeverityCritical Severity = "CRITICAL"
)

// Event is a raised alert derived from a measurement that breached a threshold.
type Event struct {
	ID            string          `json:"id"`
	PatientID     string          `json:"patientId"`
	Type          MeasurementType `json:"type"`
	Status        EventStatus     `json:"status"`
	Severity      Severity        `json:"severity"`
	Message       string          `json:"message"`
	MeasurementID string          `json:"measurementId"`
	CreatedAt     time.Time       `json:"createdAt"`
	ResolvedAt    *time.Time      `json:"resolvedAt"`
}

// NewEvent opens an event for the measurement that produced verdict.
func NewEvent(id string, m Measurement, verdict Verdict, now time.Time) (*Event, error) {
	if id == "" {
		return nil, errors.New("monitoring: empty event id")
	}
	if m.ID == "" {
		return nil, errors.New("monitoring: event without measurement")
	}
	return &Event{
		ID:            id,
		PatientID:     m.PatientID,
		Type:          m.Type,
		Status:        StatusOpen,
		Severity:      verdict.Severity,
		Message:       verdict.Message,
		MeasurementID: m.ID,
		CreatedAt:     now.UTC(),
	}, nil
}

// Acknowledge moves an open event to ACKNOWLEDGED. Resolved events stay resolved.
func (e *Event) Acknowledge() {
	if e.Status == StatusResolved {
		return
	}
	e.Status = StatusAcknowledged
}

// Resolve marks the event RESOLVED and stamps resolvedAt. Calling it again re-stamps.
func (e *Event) Resolve(at time.Time) {
	at = at.UTC()
	if at.Before(e.CreatedAt) {
		at = e.CreatedAt
	}
	e.Status = StatusResolved
	e.ResolvedAt = &at
}
