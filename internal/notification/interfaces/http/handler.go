package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	notificationapp "esante-monitoring/internal/notification/application"
	"esante-monitoring/internal/notification/broadcast"
	notification "esante-monitoring/internal/notification/domain"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Subscriber opens and closes live streams.
type Subscriber interface {
	Subscribe(recipientID string) (*broadcast.Stream, error)
	Unsubscribe(stream *broadcast.Stream)
}

// Handler provides notification HTTP endpoints.
type Handler struct {
	dispatcher   *notificationapp.Dispatcher
	hub          Subscriber
	writeTimeout time.Duration
	logger       *zap.Logger
}

// Option customizes the handler.
type Option func(*Handler)

// WithWriteTimeout sets the deadline applied to each stream write. Zero disables it.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout >= 0 {
			h.writeTimeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(dispatcher *notificationapp.Dispatcher, hub Subscriber, opts ...Option) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("notifications handler: nil dispatcher")
	}
	if hub == nil {
		return nil, errors.New("notifications handler: nil hub")
	}
	h := &Handler{dispatcher: dispatcher, hub: hub, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes mounts the endpoints under /notifications.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/stream", h.handleStream)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}/read", h.handleMarkRead)
		r.Delete("/{id}", h.handleDelete)
	})
}

type createRequest struct {
	RecipientID   string   `json:"recipientId"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Severity      string   `json:"severity"`
	Channels      []string `json:"channels"`
	CorrelationID string   `json:"correlationId"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	severity, err := notification.ParseSeverity(req.Severity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	channels := make([]notification.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		ch, err := notification.ParseChannel(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		channels = append(channels, ch)
	}

	n, err := h.dispatcher.CreateAndSend(r.Context(), notificationapp.Request{
		RecipientID:   strings.TrimSpace(req.RecipientID),
		Title:         req.Title,
		Content:       req.Content,
		Severity:      severity,
		Channels:      channels,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	recipientID := strings.TrimSpace(query.Get("recipientId"))
	if recipientID == "" {
		writeError(w, http.StatusBadRequest, "recipientId is required")
		return
	}
	status, err := notification.ParseStatus(query.Get("status"))
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
	list, err := h.dispatcher.List(r.Context(), recipientID, status, page, size)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	n, err := h.dispatcher.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, notification.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error("notification request failed", zap.Error(err))
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
