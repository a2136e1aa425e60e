package notification

import (
	"context"
	"time"
)

// Query filters a recipient's notifications. Status is optional.
type Query struct {
	RecipientID string
	Status      Status
	Limit       int
	Offset      int
}

// Repository persists notifications together with their deliveries.
type Repository interface {
	// Create stores n and its deliveries unless a notification with the same
	// non-empty correlation id exists, in which case that one is returned with
	// created=false. The check and insert are atomic.
	Create(ctx context.Context, n Notification) (stored Notification, created bool, err error)
	// SaveDispatch stores the post-dispatch status of n and all its deliveries in one transaction.
	SaveDispatch(ctx context.Context, n Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	List(ctx context.Context, query Query) ([]Notification, error)
	// MarkRead returns ErrNotFound for an unknown id.
	MarkRead(ctx context.Context, id string, at time.Time) error
	// Delete removes the notification and its deliveries. ErrNotFound for an unknown id.
	Delete(ctx context.Context, id string) error
}
