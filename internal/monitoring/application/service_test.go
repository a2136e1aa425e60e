package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	monitoring "esante-monitoring/internal/monitoring/domain"
	"esante-monitoring/internal/monitoring/infrastructure/memory"
	notificationapp "esante-monitoring/internal/notification/application"
	"esante-monitoring/internal/notification/channel"
	notification "esante-monitoring/internal/notification/domain"
	notificationmemory "esante-monitoring/internal/notification/infrastructure/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) CreateAndSend(context.Context, notificationapp.Request) (*notification.Notification, error) {
	n.calls++
	return nil, errors.New("notification store down")
}

type fixture struct {
	service    *Service
	repo       *memory.Repository
	dispatcher *notificationapp.Dispatcher
	clock      *fakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	registry, err := channel.NewRegistry(channel.InApp{})
	require.NoError(t, err)
	dispatcher, err := notificationapp.NewDispatcher(notificationmemory.NewRepository(), registry, notificationapp.WithClock(clock))
	require.NoError(t, err)

	repo := memory.NewRepository()
	seq := 0
	service, err := NewService(repo, dispatcher,
		WithClock(clock),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("mon-id-%d", seq)
		}),
	)
	require.NoError(t, err)
	return fixture{service: service, repo: repo, dispatcher: dispatcher, clock: clock}
}

func float(v float64) *float64 { return &v }

func TestIngestSpO2AlertNotifiesPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.service.Ingest(ctx, IngestRequest{PatientID: "patient-42", Type: "SPO2", Value: float(90.0), Unit: "%"})
	require.NoError(t, err)
	require.NotNil(t, result.EventID)
	assert.Equal(t, monitoring.SeverityAlert, result.EventSeverity)
	assert.Equal(t, "SpO2 low: 90.0%", result.EventMessage)
	assert.Equal(t, f.clock.now, result.MeasuredAt)

	event, err := f.service.GetEvent(ctx, *result.EventID)
	require.NoError(t, err)
	assert.Equal(t, monitoring.StatusOpen, event.Status)
	assert.Equal(t, result.ID, event.MeasurementID)

	list, err := f.dispatcher.List(ctx, "patient-42", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, "mon-"+*result.EventID, n.CorrelationID)
	assert.Equal(t, "Monitoring: ALERT", n.Title)
	assert.Equal(t, "SpO2 low: 90.0%", n.Content)
	assert.Equal(t, notification.SeverityAlert, n.Severity)
	assert.Equal(t, notification.StatusSent, n.Status)
	require.Len(t, n.Deliveries, 1)
	assert.Equal(t, notification.ChannelInApp, n.Deliveries[0].Channel)
	assert.Equal(t, notification.DeliverySent, n.Deliveries[0].Status)
}

func TestIngestBloodPressureCritical(t *testing.T) {
	f := newFixture(t)
	result, err := f.service.Ingest(context.Background(), IngestRequest{
		PatientID: "patient-42", Type: "BLOOD_PRESSURE", Value: float(182.0), Value2: float(112.0),
	})
	require.NoError(t, err)
	require.NotNil(t, result.EventID)
	assert.Equal(t, monitoring.SeverityCritical, result.EventSeverity)
	assert.Equal(t, "BP critical: 182.0/112.0 mmHg", result.EventMessage)
}

func TestIngestNormalHeartRateRaisesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.service.Ingest(ctx, IngestRequest{PatientID: "patient-42", Type: "heart_rate", Value: float(75.0)})
	require.NoError(t, err)
	assert.Nil(t, result.EventID)
	assert.Equal(t, monitoring.TypeHeartRate, result.Type)

	events, err := f.service.ListEvents(ctx, "patient-42", "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	notifications, err := f.dispatcher.List(ctx, "patient-42", "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, notifications)
}

func TestIngestKeepsProvidedTimestamp(t *testing.T) {
	f := newFixture(t)
	measuredAt := time.Date(2026, 4, 30, 22, 15, 0, 0, time.FixedZone("CEST", 2*3600))
	result, err := f.service.Ingest(context.Background(), IngestRequest{
		PatientID: "p", Type: "WEIGHT", Value: float(71.2), MeasuredAt: &measuredAt,
	})
	require.NoError(t, err)
	assert.True(t, measuredAt.Equal(result.MeasuredAt))
	assert.Equal(t, time.UTC, result.MeasuredAt.Location())
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]IngestRequest{
		"missing patient": {Type: "SPO2", Value: float(95)},
		"missing type":    {PatientID: "p", Value: float(95)},
		"unknown type":    {PatientID: "p", Type: "MOOD", Value: float(95)},
		"missing value":   {PatientID: "p", Type: "SPO2"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.Ingest(context.Background(), req)
			assert.ErrorIs(t, err, monitoring.ErrValidation)
		})
	}
}

func TestIngestSurvivesNotifierFailure(t *testing.T) {
	notifier := &failingNotifier{}
	service, err := NewService(memory.NewRepository(), notifier)
	require.NoError(t, err)

	result, err := service.Ingest(context.Background(), IngestRequest{PatientID: "p", Type: "GLUCOSE", Value: float(55)})
	require.NoError(t, err)
	assert.Equal(t, monitoring.SeverityCritical, result.EventSeverity)
	assert.Equal(t, 1, notifier.calls)
}

func TestAcknowledgeThenResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.service.Ingest(ctx, IngestRequest{PatientID: "p", Type: "HEART_RATE", Value: float(135)})
	require.NoError(t, err)

	acked, err := f.service.Acknowledge(ctx, *result.EventID)
	require.NoError(t, err)
	assert.Equal(t, monitoring.StatusAcknowledged, acked.Status)
	assert.Nil(t, acked.ResolvedAt)

	f.clock.advance(10 * time.Minute)
	resolved, err := f.service.Resolve(ctx, *result.EventID)
	require.NoError(t, err)
	assert.Equal(t, monitoring.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.False(t, resolved.ResolvedAt.Before(resolved.CreatedAt))

	// resolved events stay resolved
	again, err := f.service.Acknowledge(ctx, *result.EventID)
	require.NoError(t, err)
	assert.Equal(t, monitoring.StatusResolved, again.Status)

	_, err = f.service.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, monitoring.ErrNotFound)
	_, err = f.service.Acknowledge(ctx, "missing")
	assert.ErrorIs(t, err, monitoring.ErrNotFound)
}

func TestResolveDirectlyFromOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.service.Ingest(ctx, IngestRequest{PatientID: "p", Type: "SPO2", Value: float(80)})
	require.NoError(t, err)

	resolved, err := f.service.Resolve(ctx, *result.EventID)
	require.NoError(t, err)
	assert.Equal(t, monitoring.StatusResolved, resolved.Status)

	open, err := f.service.ListEvents(ctx, "p", monitoring.StatusOpen, 0, 20)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestListEventsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for _, v := range []float64{45, 135, 115} {
		result, err := f.service.Ingest(ctx, IngestRequest{PatientID: "p", Type: "HEART_RATE", Value: float(v)})
		require.NoError(t, err)
		require.NotNil(t, result.EventID)
		ids = append(ids, *result.EventID)
		f.clock.advance(time.Minute)
	}

	events, err := f.service.ListEvents(ctx, "p", "", 0, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ids[2], events[0].ID)
	assert.Equal(t, ids[1], events[1].ID)

	_, err = f.service.ListEvents(ctx, "", "", 0, 0)
	assert.ErrorIs(t, err, monitoring.ErrValidation)
}

func TestLatestByTypeInTypeOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, req := range []IngestRequest{
		{PatientID: "p", Type: "WEIGHT", Value: float(70)},
		{PatientID: "p", Type: "SPO2", Value: float(97)},
		{PatientID: "p", Type: "HEART_RATE", Value: float(70)},
	} {
		_, err := f.service.Ingest(ctx, req)
		require.NoError(t, err)
	}
	f.clock.advance(time.Minute)
	_, err := f.service.Ingest(ctx, IngestRequest{PatientID: "p", Type: "HEART_RATE", Value: float(80)})
	require.NoError(t, err)

	latest, err := f.service.LatestByType(ctx, "p")
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, monitoring.TypeHeartRate, latest[0].Type)
	assert.Equal(t, 80.0, latest[0].Value)
	assert.Equal(t, monitoring.TypeSpO2, latest[1].Type)
	assert.Equal(t, monitoring.TypeWeight, latest[2].Type)
}

func TestListEventsFarPageIsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Ingest(ctx, IngestRequest{PatientID: "p", Type: "SPO2", Value: float(80)})
	require.NoError(t, err)

	events, err := f.service.ListEvents(ctx, "p", "", math.MaxInt, 50)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestIngestCompletesAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.service.Ingest(ctx, IngestRequest{PatientID: "patient-42", Type: "SPO2", Value: float(85)})
	require.NoError(t, err)
	require.NotNil(t, result.EventID)

	list, err := f.dispatcher.List(context.Background(), "patient-42", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notification.StatusSent, list[0].Status)
	require.Len(t, list[0].Deliveries, 1)
	assert.Equal(t, notification.DeliverySent, list[0].Deliveries[0].Status)
	assert.Empty(t, list[0].Deliveries[0].LastError)
}

func TestMeasurementResultJSONCarriesNullEventID(t *testing.T) {
	f := newFixture(t)
	result, err := f.service.Ingest(context.Background(), IngestRequest{PatientID: "p", Type: "HEART_RATE", Value: float(75)})
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	value, ok := body["eventId"]
	assert.True(t, ok)
	assert.Nil(t, value)
}
