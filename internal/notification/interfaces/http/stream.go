package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"esante-monitoring/internal/notification/broadcast"

	"go.uber.org/zap"
)

// handleStream serves GET /notifications/stream as server-sent events.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	recipientID := strings.TrimSpace(r.URL.Query().Get("recipientId"))
	if recipientID == "" {
		writeError(w, http.StatusBadRequest, "recipientId is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream unsupported")
		return
	}

	stream, err := h.hub.Subscribe(recipientID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "stream not ready")
		return
	}
	defer h.hub.Unsubscribe(stream)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-stream.Done():
			return
		case event := <-stream.Events():
			if err := h.setWriteDeadline(rc); err != nil {
				return
			}
			if err := writeEvent(w, event); err != nil {
				h.logger.Debug("stream write failed", zap.String("recipient_id", recipientID), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) setWriteDeadline(rc *http.ResponseController) error {
	if h.writeTimeout <= 0 {
		return nil
	}
	err := rc.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func writeEvent(w io.Writer, event broadcast.Event) error {
	var buf bytes.Buffer
	if event.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", event.ID)
	}
	if event.Name != "" {
		fmt.Fprintf(&buf, "event: %s\n", event.Name)
	}
	if event.Retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", event.Retry.Milliseconds())
	}
	for _, line := range bytes.Split(event.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
