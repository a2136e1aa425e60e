package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	monitoringapp "esante-monitoring/internal/monitoring/application"
	monitoring "esante-monitoring/internal/monitoring/domain"
	"esante-monitoring/internal/monitoring/infrastructure/memory"
	notificationapp "esante-monitoring/internal/notification/application"
	"esante-monitoring/internal/notification/channel"
	notificationmemory "esante-monitoring/internal/notification/infrastructure/memory"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type tickClock struct {
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	registry, err := channel.NewRegistry(channel.InApp{})
	require.NoError(t, err)
	dispatcher, err := notificationapp.NewDispatcher(notificationmemory.NewRepository(), registry)
	require.NoError(t, err)
	service, err := monitoringapp.NewService(memory.NewRepository(), dispatcher, monitoringapp.WithClock(&tickClock{
		now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, err)
	handler, err := NewHandler(service, nil)
	require.NoError(t, err)

	router := chi.NewRouter()
	handler.Routes(router)
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func ingest(t *testing.T, router http.Handler, body string) monitoringapp.MeasurementResult {
	t.Helper()
	rec := serve(router, http.MethodPost, "/measurements", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result monitoringapp.MeasurementResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestIngestEndpoint(t *testing.T) {
	router := newRouter(t)

	result := ingest(t, router, `{"patientId":"patient-42","type":"SPO2","value":90.0,"unit":"%"}`)
	require.NotNil(t, result.EventID)
	assert.Equal(t, monitoring.SeverityAlert, result.EventSeverity)
	assert.Equal(t, "SpO2 low: 90.0%", result.EventMessage)

	rec := serve(router, http.MethodPost, "/measurements", `{"patientId":"patient-42","type":"HEART_RATE","value":75.0}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "eventId")
	assert.Equal(t, "HEART_RATE", raw["type"])
}

func TestIngestEndpointValidation(t *testing.T) {
	router := newRouter(t)
	for _, body := range []string{
		`{"type":"SPO2","value":90}`,
		`{"patientId":"p","type":"MOOD","value":90}`,
		`{"patientId":"p","type":"SPO2"}`,
		`{"patientId":"p","type":"SPO2","value":90,"measuredAt":"yesterday"}`,
		`not json`,
	} {
		rec := serve(router, http.MethodPost, "/measurements", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestEventEndpoints(t *testing.T) {
	router := newRouter(t)
	result := ingest(t, router, `{"patientId":"p","type":"GLUCOSE","value":300}`)
	require.NotNil(t, result.EventID)

	rec := serve(router, http.MethodPatch, "/events/"+*result.EventID+"/ack", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(router, http.MethodGet, "/events?patientId=p&status=acknowledged", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []monitoring.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Nil(t, events[0].ResolvedAt)

	rec = serve(router, http.MethodPatch, "/events/"+*result.EventID+"/resolve", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(router, http.MethodGet, "/events?patientId=p", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, monitoring.StatusResolved, events[0].Status)
	assert.NotNil(t, events[0].ResolvedAt)

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodPatch, "/events/missing/ack", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodPatch, "/events/missing/resolve", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/events", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/events?patientId=p&status=GONE", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/events?patientId=p&page=x", "").Code)
}

func TestLatestEndpoint(t *testing.T) {
	router := newRouter(t)
	ingest(t, router, `{"patientId":"p","type":"WEIGHT","value":70.5,"unit":"kg"}`)
	ingest(t, router, `{"patientId":"p","type":"BLOOD_PRESSURE","value":120,"value2":80,"unit":"mmHg"}`)

	rec := serve(router, http.MethodGet, "/metrics/latest?patientId=p", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest []monitoring.Measurement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	require.Len(t, latest, 2)
	assert.Equal(t, monitoring.TypeBloodPressure, latest[0].Type)
	assert.Equal(t, monitoring.TypeWeight, latest[1].Type)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/metrics/latest", "").Code)
}

func TestExportEndpoint(t *testing.T) {
	router := newRouter(t)
	ingest(t, router, `{"patientId":"p","type":"SPO2","value":85}`)
	ingest(t, router, `{"patientId":"p","type":"HEART_RATE","value":120}`)

	rec := serve(router, http.MethodGet, "/events/export?patientId=p", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "events-p.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	rows, err := book.GetRows("events")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, exportHeaders, rows[1])
	assert.Equal(t, "HEART_RATE", rows[2][1])
	assert.Equal(t, "SpO2 critical: 85.0%", rows[3][4])

	rec = serve(router, http.MethodGet, "/events/export?patientId=p&format=pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypePDF, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/events/export?patientId=p&format=csv", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/events/export", "").Code)
}
