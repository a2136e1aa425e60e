package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	monitoringapp "esante-monitoring/internal/monitoring/application"
	monitoring "esante-monitoring/internal/monitoring/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides measurement and event HTTP endpoints.
type Handler struct {
	service *monitoringapp.Service
	logger  *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *monitoringapp.Service, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("monitoring handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}, nil
}

// Routes mounts the measurement, event and latest-metrics endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/measurements", h.handleIngest)
	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.handleListEvents)
		r.Get("/export", h.handleExport)
		r.Patch("/{id}/ack", h.handleAcknowledge)
		r.Patch("/{id}/resolve", h.handleResolve)
	})
	r.Get("/metrics/latest", h.handleLatest)
}

type ingestRequest struct {
	PatientID  string     `json:"patientId"`
	Type       string     `json:"type"`
	Value      *float64   `json:"value"`
	Value2     *float64   `json:"value2"`
	Unit       string     `json:"unit"`
	MeasuredAt *time.Time `json:"measuredAt"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	result, err := h.service.Ingest(r.Context(), monitoringapp.IngestRequest{
		PatientID:  req.PatientID,
		Type:       req.Type,
		Value:      req.Value,
		Value2:     req.Value2,
		Unit:       req.Unit,
		MeasuredAt: req.MeasuredAt,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	patientID := strings.TrimSpace(query.Get("patientId"))
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	status, err := monitoring.ParseEventStatus(query.Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := intQuery(query.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	size, err := intQuery(query.Get("size"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "size must be an integer")
		return
	}
	events, err := h.service.ListEvents(r.Context(), patientID, status, page, size)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Acknowledge(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	patientID := strings.TrimSpace(r.URL.Query().Get("patientId"))
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	latest, err := h.service.LatestByType(r.Context(), patientID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitoring.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, monitoring.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error("monitoring request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intQuery(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
