package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	notification "esante-monitoring/internal/notification/domain"
	"esante-monitoring/internal/platform/postgres"
)

const notificationColumns = `id, recipient_id, title, content, severity, status, correlation_id, created_at, sent_at, read_at`

type scanner interface {
	Scan(dest ...any) error
}

// Repository stores notifications and their deliveries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("notification repo: nil db")
	}
	return &Repository{db: db}, nil
}

// Create implements notification.Repository. The correlation id unique index
// arbitrates concurrent duplicates.
func (r *Repository) Create(ctx context.Context, n notification.Notification) (notification.Notification, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return notification.Notification{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO notifications (`+notificationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (correlation_id) DO NOTHING`,
		n.ID, n.RecipientID, n.Title, n.Content, string(n.Severity), string(n.Status),
		postgres.NullableString(n.CorrelationID), n.CreatedAt.UTC(),
		postgres.NullableTime(n.SentAt), postgres.NullableTime(n.ReadAt))
	if err != nil {
		if postgres.IsUniqueViolation(err) && n.CorrelationID != "" {
			_ = tx.Rollback()
			return r.existing(ctx, n.CorrelationID)
		}
		return notification.Notification{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return notification.Notification{}, false, err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return r.existing(ctx, n.CorrelationID)
	}

	for i, d := range n.Deliveries {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO notification_deliveries (id, notification_id, position, channel, status, attempts, last_error, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.ID, n.ID, i, string(d.Channel), string(d.Status), d.Attempts,
			postgres.NullableString(d.LastError), postgres.NullableTime(d.SentAt)); err != nil {
			return notification.Notification{}, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return notification.Notification{}, false, err
	}
	return n, true, nil
}

func (r *Repository) existing(ctx context.Context, correlationID string) (notification.Notification, bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE correlation_id = $1`, correlationID)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notification.Notification{}, false, fmt.Errorf("notification repo: correlation %q conflicted but no row found", correlationID)
		}
		return notification.Notification{}, false, err
	}
	deliveries, err := r.deliveries(ctx, n.ID)
	if err != nil {
		return notification.Notification{}, false, err
	}
	n.Deliveries = deliveries
	return *n, false, nil
}

// SaveDispatch implements notification.Repository.
func (r *Repository) SaveDispatch(ctx context.Context, n notification.Notification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
UPDATE notifications
SET status = $2, sent_at = $3
WHERE id = $1`, n.ID, string(n.Status), postgres.NullableTime(n.SentAt))
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return notification.ErrNotFound
	}
	for _, d := range n.Deliveries {
		if _, err := tx.ExecContext(ctx, `
UPDATE notification_deliveries
SET status = $2, attempts = $3, last_error = $4, sent_at = $5
WHERE id = $1`, d.ID, string(d.Status), d.Attempts,
			postgres.NullableString(d.LastError), postgres.NullableTime(d.SentAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get implements notification.Repository. A missing id yields nil, nil.
func (r *Repository) Get(ctx context.Context, id string) (*notification.Notification, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	deliveries, err := r.deliveries(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	n.Deliveries = deliveries
	return n, nil
}

// List implements notification.Repository.
func (r *Repository) List(ctx context.Context, query notification.Query) ([]notification.Notification, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM notifications
WHERE recipient_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, query.RecipientID, string(query.Status), limit, query.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]notification.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		deliveries, err := r.deliveries(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Deliveries = deliveries
	}
	return result, nil
}

// MarkRead implements notification.Repository.
func (r *Repository) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE notifications
SET status = $2, read_at = $3
WHERE id = $1`, id, string(notification.StatusRead), at.UTC())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete implements notification.Repository. Deliveries cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *Repository) deliveries(ctx context.Context, notificationID string) ([]notification.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, notification_id, channel, status, attempts, last_error, sent_at
FROM notification_deliveries
WHERE notification_id = $1
ORDER BY position ASC`, notificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]notification.Delivery, 0)
	for rows.Next() {
		var (
			d         notification.Delivery
			channel   string
			status    string
			lastError sql.NullString
			sentAt    sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.NotificationID, &channel, &status, &d.Attempts, &lastError, &sentAt); err != nil {
			return nil, err
		}
		d.Channel = notification.Channel(channel)
		d.Status = notification.DeliveryStatus(status)
		d.LastError = lastError.String
		d.SentAt = postgres.TimePtr(sentAt)
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanNotification(row scanner) (*notification.Notification, error) {
	var (
		n             notification.Notification
		severity      string
		status        string
		correlationID sql.NullString
		sentAt        sql.NullTime
		readAt        sql.NullTime
	)
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Title,
		&n.Content,
		&severity,
		&status,
		&correlationID,
		&n.CreatedAt,
		&sentAt,
		&readAt,
	); err != nil {
		return nil, err
	}
	n.Severity = notification.Severity(severity)
	n.Status = notification.Status(status)
	n.CorrelationID = correlationID.String
	n.CreatedAt = n.CreatedAt.UTC()
	n.SentAt = postgres.TimePtr(sentAt)
	n.ReadAt = postgres.TimePtr(readAt)
	return &n, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notification.ErrNotFound
	}
	return nil
}
