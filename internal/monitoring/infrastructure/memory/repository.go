package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	monitoring "esante-monitoring/internal/monitoring/domain"
)

// Repository keeps measurements and events in process memory.
type Repository struct {
	mu           sync.RWMutex
	measurements map[string]monitoring.Measurement
	events       map[string]monitoring.Event
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		measurements: make(map[string]monitoring.Measurement),
		events:       make(map[string]monitoring.Event),
	}
}

// SaveMeasurement implements monitoring.Repository.
func (r *Repository) SaveMeasurement(ctx context.Context, m monitoring.Measurement, event *monitoring.Event) error {
	_ = ctx
	if m.ID == "" {
		return errors.New("monitoring memory repo: empty measurement id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.measurements[m.ID]; exists {
		return errors.New("monitoring memory repo: duplicate measurement id")
	}
	if event != nil {
		if _, exists := r.events[event.ID]; exists {
			return errors.New("monitoring memory repo: duplicate event id")
		}
		r.events[event.ID] = cloneEvent(*event)
	}
	r.measurements[m.ID] = cloneMeasurement(m)
	return nil
}

// UpdateEvent implements monitoring.Repository.
func (r *Repository) UpdateEvent(ctx context.Context, id string, mutate func(*monitoring.Event)) (*monitoring.Event, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, monitoring.ErrNotFound
	}
	if mutate != nil {
		mutate(&event)
	}
	r.events[id] = cloneEvent(event)
	out := cloneEvent(event)
	return &out, nil
}

// GetEvent implements monitoring.Repository. A missing id yields nil, nil.
func (r *Repository) GetEvent(ctx context.Context, id string) (*monitoring.Event, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	event, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	out := cloneEvent(event)
	return &out, nil
}

// ListEvents implements monitoring.Repository.
func (r *Repository) ListEvents(ctx context.Context, query monitoring.EventQuery) ([]monitoring.Event, error) {
	_ = ctx
	r.mu.RLock()
	matched := make([]monitoring.Event, 0)
	for _, event := range r.events {
		if event.PatientID != query.PatientID {
			continue
		}
		if query.Status != "" && event.Status != query.Status {
			continue
		}
		matched = append(matched, cloneEvent(event))
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if query.Offset >= len(matched) {
		return []monitoring.Event{}, nil
	}
	matched = matched[query.Offset:]
	if query.Limit > 0 && query.Limit < len(matched) {
		matched = matched[:query.Limit]
	}
	return matched, nil
}

// LatestByType implements monitoring.Repository.
func (r *Repository) LatestByType(ctx context.Context, patientID string) ([]monitoring.Measurement, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	latest := make(map[monitoring.MeasurementType]monitoring.Measurement)
	for _, m := range r.measurements {
		if m.PatientID != patientID {
			continue
		}
		current, ok := latest[m.Type]
		if !ok || m.MeasuredAt.After(current.MeasuredAt) ||
			(m.MeasuredAt.Equal(current.MeasuredAt) && m.CreatedAt.After(current.CreatedAt)) {
			latest[m.Type] = m
		}
	}
	result := make([]monitoring.Measurement, 0, len(latest))
	for _, t := range monitoring.MeasurementTypes {
		if m, ok := latest[t]; ok {
			result = append(result, cloneMeasurement(m))
		}
	}
	return result, nil
}

func cloneEvent(e monitoring.Event) monitoring.Event {
	if e.ResolvedAt != nil {
		at := *e.ResolvedAt
		e.ResolvedAt = &at
	}
	return e
}

func cloneMeasurement(m monitoring.Measurement) monitoring.Measurement {
	if m.Value2 != nil {
		v := *m.Value2
		m.Value2 = &v
	}
	return m
}
