package postgres

import (
	"context"
	"database/sql"
	"errors"

	monitoring "esante-monitoring/internal/monitoring/domain"
	"esante-monitoring/internal/platform/postgres"
)

const eventColumns = `id, patient_id, type, status, severity, message, measurement_id, created_at, resolved_at`

type scanner interface {
	Scan(dest ...any) error
}

// Repository stores measurements and monitoring events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("monitoring repo: nil db")
	}
	return &Repository{db: db}, nil
}

// SaveMeasurement implements monitoring.Repository.
func (r *Repository) SaveMeasurement(ctx context.Context, m monitoring.Measurement, event *monitoring.Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var value2 any
	if m.Value2 != nil {
		value2 = *m.Value2
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO measurements (id, patient_id, type, value, value2, unit, measured_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.PatientID, string(m.Type), m.Value, value2, postgres.NullableString(m.Unit),
		m.MeasuredAt.UTC(), m.CreatedAt.UTC()); err != nil {
		return err
	}
	if event != nil {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO monitoring_events (`+eventColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			event.ID, event.PatientID, string(event.Type), string(event.Status), string(event.Severity),
			event.Message, event.MeasurementID, event.CreatedAt.UTC(), postgres.NullableTime(event.ResolvedAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateEvent implements monitoring.Repository. The row is locked for the
// duration of mutate.
func (r *Repository) UpdateEvent(ctx context.Context, id string, mutate func(*monitoring.Event)) (*monitoring.Event, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM monitoring_events
WHERE id = $1
FOR UPDATE`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, monitoring.ErrNotFound
		}
		return nil, err
	}
	if mutate != nil {
		mutate(event)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE monitoring_events
SET status = $2, resolved_at = $3
WHERE id = $1`, event.ID, string(event.Status), postgres.NullableTime(event.ResolvedAt)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return event, nil
}

// GetEvent implements monitoring.Repository. A missing id yields nil, nil.
func (r *Repository) GetEvent(ctx context.Context, id string) (*monitoring.Event, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM monitoring_events
WHERE id = $1`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return event, nil
}

// ListEvents implements monitoring.Repository.
func (r *Repository) ListEvents(ctx context.Context, query monitoring.EventQuery) ([]monitoring.Event, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM monitoring_events
WHERE patient_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, query.PatientID, string(query.Status), limit, query.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]monitoring.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LatestByType implements monitoring.Repository.
func (r *Repository) LatestByType(ctx context.Context, patientID string) ([]monitoring.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (type) id, patient_id, type, value, value2, unit, measured_at, created_at
FROM measurements
WHERE patient_id = $1
ORDER BY type, measured_at DESC, created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]monitoring.Measurement, 0)
	for rows.Next() {
		var (
			m      monitoring.Measurement
			kind   string
			value2 sql.NullFloat64
			unit   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.PatientID, &kind, &m.Value, &value2, &unit, &m.MeasuredAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = monitoring.MeasurementType(kind)
		if value2.Valid {
			v := value2.Float64
			m.Value2 = &v
		}
		m.Unit = unit.String
		m.MeasuredAt = m.MeasuredAt.UTC()
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanEvent(row scanner) (*monitoring.Event, error) {
	var (
		event         monitoring.Event
		kind          string
		status        string
		severity      string
		measurementID sql.NullString
		resolvedAt    sql.NullTime
	)
	if err := row.Scan(
		&event.ID,
		&event.PatientID,
		&kind,
		&status,
		&severity,
		&event.Message,
		&measurementID,
		&event.CreatedAt,
		&resolvedAt,
	); err != nil {
		return nil, err
	}
	event.Type = monitoring.MeasurementType(kind)
	event.Status = monitoring.EventStatus(status)
	event.Severity = monitoring.Severity(severity)
	event.MeasurementID = measurementID.String
	event.CreatedAt = event.CreatedAt.UTC()
	event.ResolvedAt = postgres.TimePtr(resolvedAt)
	return &event, nil
}
