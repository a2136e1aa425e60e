package monitoring

import "context"

// EventQuery filters a patient's event history. Status is optional.
type EventQuery struct {
	PatientID string
	Status    EventStatus
	Limit     int
	Offset    int
}

// Repository persists measurements and events.
type Repository interface {
	// SaveMeasurement stores m and, when non-nil, its event in one transaction.
	SaveMeasurement(ctx context.Context, m Measurement, event *Event) error
	// UpdateEvent loads the event, applies mutate and stores it in one transaction.
	// It returns ErrNotFound for an unknown id.
	UpdateEvent(ctx context.Context, id string, mutate func(*Event)) (*Event, error)
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context, query EventQuery) ([]Event, error)
	// LatestByType returns the newest measurement of each type the patient has.
	LatestByType(ctx context.Context, patientID string) ([]Measurement, error)
}
