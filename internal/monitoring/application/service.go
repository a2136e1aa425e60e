package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	monitoring "esante-monitoring/internal/monitoring/domain"
	notificationapp "esante-monitoring/internal/notification/application"
	notification "esante-monitoring/internal/notification/domain"
	"esante-monitoring/internal/observability/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ExportLimit caps the events rendered into one history export.
	ExportLimit = 500

	correlationPrefix = "mon-"
)

// Notifier creates and sends notifications.
type Notifier interface {
	CreateAndSend(ctx context.Context, req notificationapp.Request) (*notification.Notification, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// IngestRequest is one reading as submitted by a device or client.
type IngestRequest struct {
	PatientID  string
	Type       string
	Value      *float64
	Value2     *float64
	Unit       string
	MeasuredAt *time.Time
}

// MeasurementResult is the stored measurement plus the event it raised, if any.
// EventID is nil when no event fired.
type MeasurementResult struct {
	monitoring.Measurement
	EventID       *string             `json:"eventId"`
	EventSeverity monitoring.Severity `json:"eventSeverity,omitempty"`
	EventMessage  string              `json:"eventMessage,omitempty"`
}

// Service ingests measurements and manages the event lifecycle.
type Service struct {
	repo     monitoring.Repository
	notifier Notifier
	clock    Clock
	newID    func() string
	logger   *zap.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a monitoring service.
func NewService(repo monitoring.Repository, notifier Notifier, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("monitoring: nil repository")
	}
	if notifier == nil {
		return nil, errors.New("monitoring: nil notifier")
	}
	s := &Service{
		repo:     repo,
		notifier: notifier,
		clock:    systemClock{},
		newID:    uuid.NewString,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ingest stores a measurement, opens an event when it breaches a threshold and
// notifies the patient. Notification failures are logged, never returned.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*MeasurementResult, error) {
	start := time.Now()
	result, err := s.ingest(ctx, req)
	switch {
	case err == nil:
		metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	case errors.Is(err, monitoring.ErrValidation):
		metrics.ObserveIngest(metrics.ResultRejected, time.Since(start))
	default:
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
	}
	return result, err
}

func (s *Service) ingest(ctx context.Context, req IngestRequest) (*MeasurementResult, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, fmt.Errorf("%w: patientId is required", monitoring.ErrValidation)
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, fmt.Errorf("%w: type is required", monitoring.ErrValidation)
	}
	measurementType, err := monitoring.ParseMeasurementType(req.Type)
	if err != nil {
		return nil, err
	}
	if req.Value == nil {
		return nil, fmt.Errorf("%w: value is required", monitoring.ErrValidation)
	}

	now := s.clock.Now().UTC()
	measuredAt := now
	if req.MeasuredAt != nil && !req.MeasuredAt.IsZero() {
		measuredAt = req.MeasuredAt.UTC()
	}
	m := monitoring.Measurement{
		ID:         s.newID(),
		PatientID:  strings.TrimSpace(req.PatientID),
		Type:       measurementType,
		Value:      *req.Value,
		Value2:     req.Value2,
		Unit:       req.Unit,
		MeasuredAt: measuredAt,
		CreatedAt:  now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var event *monitoring.Event
	if verdict, fired := monitoring.Evaluate(m.Type, m.Value, m.Value2); fired {
		event, err = monitoring.NewEvent(s.newID(), m, verdict, now)
		if err != nil {
			return nil, err
		}
	}

	// Accepted readings are stored and notified even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.SaveMeasurement(ctx, m, event); err != nil {
		return nil, fmt.Errorf("monitoring: save measurement: %w", err)
	}

	result := &MeasurementResult{Measurement: m}
	if event == nil {
		return result, nil
	}
	result.EventID = &event.ID
	result.EventSeverity = event.Severity
	result.EventMessage = event.Message
	metrics.IncEvent(string(event.Severity))
	s.logger.Info("monitoring event opened",
		zap.String("event_id", event.ID),
		zap.String("patient_id", event.PatientID),
		zap.String("type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
	)
	s.notify(ctx, event)
	return result, nil
}

func (s *Service) notify(ctx context.Context, event *monitoring.Event) {
	_, err := s.notifier.CreateAndSend(ctx, notificationapp.Request{
		RecipientID:   event.PatientID,
		Title:         "Monitoring: " + string(event.Severity),
		Content:       event.Message,
		Severity:      notification.Severity(event.Severity),
		Channels:      []notification.Channel{notification.ChannelInApp},
		CorrelationID: correlationPrefix + event.ID,
	})
	if err != nil {
		s.logger.Warn("monitoring notification failed",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}

// ListEvents returns a patient's events, newest first.
func (s *Service) ListEvents(ctx context.Context, patientID string, status monitoring.EventStatus, page, size int) ([]monitoring.Event, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patientId is required", monitoring.ErrValidation)
	}
	limit, offset := notificationapp.Page(page, size)
	return s.listEvents(ctx, monitoring.EventQuery{
		PatientID: patientID,
		Status:    status,
		Limit:     limit,
		Offset:    offset,
	})
}

// ExportEvents returns up to ExportLimit of the patient's newest events.
func (s *Service) ExportEvents(ctx context.Context, patientID string) ([]monitoring.Event, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patientId is required", monitoring.ErrValidation)
	}
	return s.listEvents(ctx, monitoring.EventQuery{PatientID: patientID, Limit: ExportLimit})
}

func (s *Service) listEvents(ctx context.Context, query monitoring.EventQuery) ([]monitoring.Event, error) {
	events, err := s.repo.ListEvents(ctx, query)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []monitoring.Event{}
	}
	return events, nil
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, id string) (*monitoring.Event, error) {
	event, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, monitoring.ErrNotFound
	}
	return event, nil
}

// Acknowledge marks an event ACKNOWLEDGED.
func (s *Service) Acknowledge(ctx context.Context, id string) (*monitoring.Event, error) {
	event, err := s.repo.UpdateEvent(ctx, id, func(e *monitoring.Event) {
		e.Acknowledge()
	})
	if err != nil {
		return nil, err
	}
	metrics.IncEventTransition("acknowledge")
	return event, nil
}

// Resolve marks an event RESOLVED at the current time.
func (s *Service) Resolve(ctx context.Context, id string) (*monitoring.Event, error) {
	now := s.clock.Now()
	event, err := s.repo.UpdateEvent(ctx, id, func(e *monitoring.Event) {
		e.Resolve(now)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncEventTransition("resolve")
	return event, nil
}

// LatestByType returns the newest measurement of each type, in type order.
func (s *Service) LatestByType(ctx context.Context, patientID string) ([]monitoring.Measurement, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patientId is required", monitoring.ErrValidation)
	}
	latest, err := s.repo.LatestByType(ctx, patientID)
	if err != nil {
		return nil, err
	}
	order := make(map[monitoring.MeasurementType]int, len(monitoring.MeasurementTypes))
	for i, t := range monitoring.MeasurementTypes {
		order[t] = i
	}
	sorted := make([]monitoring.Measurement, len(latest))
	copy(sorted, latest)
	sort.SliceStable(sorted, func(i, j int) bool {
		return order[sorted[i].Type] < order[sorted[j].Type]
	})
	return sorted, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
