package memory

import (
	"context"
	"testing"
	"time"

	monitoring "esante-monitoring/internal/monitoring/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func measurement(id, patient string, t monitoring.MeasurementType, v float64, at time.Time) monitoring.Measurement {
	return monitoring.Measurement{ID: id, PatientID: patient, Type: t, Value: v, MeasuredAt: at, CreatedAt: at}
}

func TestSaveAndListEvents(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"e-1", "e-2", "e-3"} {
		m := measurement("m-"+id, "p-1", monitoring.TypeSpO2, 90, base.Add(time.Duration(i)*time.Minute))
		event := &monitoring.Event{ID: id, PatientID: "p-1", Type: m.Type, Status: monitoring.StatusOpen,
			Severity: monitoring.SeverityAlert, MeasurementID: m.ID, CreatedAt: m.CreatedAt}
		require.NoError(t, repo.SaveMeasurement(ctx, m, event))
	}
	require.NoError(t, repo.SaveMeasurement(ctx, measurement("m-x", "p-2", monitoring.TypeSpO2, 97, base), nil))

	list, err := repo.ListEvents(ctx, monitoring.EventQuery{PatientID: "p-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e-3", list[0].ID)
	assert.Equal(t, "e-2", list[1].ID)

	list, err = repo.ListEvents(ctx, monitoring.EventQuery{PatientID: "p-1", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "e-1", list[0].ID)

	list, err = repo.ListEvents(ctx, monitoring.EventQuery{PatientID: "p-2"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestUpdateEvent(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := measurement("m-1", "p-1", monitoring.TypeHeartRate, 150, now)
	require.NoError(t, repo.SaveMeasurement(ctx, m, &monitoring.Event{
		ID: "e-1", PatientID: "p-1", Type: m.Type, Status: monitoring.StatusOpen, CreatedAt: now,
	}))

	updated, err := repo.UpdateEvent(ctx, "e-1", func(e *monitoring.Event) { e.Resolve(now.Add(time.Hour)) })
	require.NoError(t, err)
	assert.Equal(t, monitoring.StatusResolved, updated.Status)

	resolved, err := repo.ListEvents(ctx, monitoring.EventQuery{PatientID: "p-1", Status: monitoring.StatusResolved})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)

	_, err = repo.UpdateEvent(ctx, "missing", func(e *monitoring.Event) { e.Acknowledge() })
	assert.ErrorIs(t, err, monitoring.ErrNotFound)

	missing, err := repo.GetEvent(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLatestByType(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.SaveMeasurement(ctx, measurement("m-1", "p-1", monitoring.TypeWeight, 70, base), nil))
	require.NoError(t, repo.SaveMeasurement(ctx, measurement("m-2", "p-1", monitoring.TypeHeartRate, 60, base), nil))
	require.NoError(t, repo.SaveMeasurement(ctx, measurement("m-3", "p-1", monitoring.TypeHeartRate, 75, base.Add(time.Minute)), nil))
	require.NoError(t, repo.SaveMeasurement(ctx, measurement("m-4", "p-1", monitoring.TypeHeartRate, 99, base.Add(-time.Minute)), nil))
	require.NoError(t, repo.SaveMeasurement(ctx, measurement("m-5", "p-2", monitoring.TypeSpO2, 97, base), nil))

	latest, err := repo.LatestByType(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "m-3", latest[0].ID)
	assert.Equal(t, "m-1", latest[1].ID)
}

func TestSaveMeasurementRejectsDuplicates(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	m := measurement("m-1", "p-1", monitoring.TypeSteps, 1000, time.Now())
	require.NoError(t, repo.SaveMeasurement(ctx, m, nil))
	assert.Error(t, repo.SaveMeasurement(ctx, m, nil))
}
