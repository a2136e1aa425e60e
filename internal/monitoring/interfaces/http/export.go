package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	monitoring "esante-monitoring/internal/monitoring/domain"
	"esante-monitoring/internal/observability/metrics"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	formatXLSX = "xlsx"
	formatPDF  = "pdf"

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

var exportHeaders = []string{"Created", "Type", "Severity", "Status", "Message", "Resolved"}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query()
	patientID := strings.TrimSpace(query.Get("patientId"))
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = formatXLSX
	}
	if format != formatXLSX && format != formatPDF {
		writeError(w, http.StatusBadRequest, "format must be xlsx or pdf")
		return
	}

	events, err := h.service.ExportEvents(r.Context(), patientID)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		h.respondError(w, err)
		return
	}

	var (
		body        []byte
		contentType string
	)
	switch format {
	case formatPDF:
		body, err = BuildEventsPDF(patientID, events)
		contentType = contentTypePDF
	default:
		body, err = BuildEventsXLSX(patientID, events)
		contentType = contentTypeXLSX
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		h.logger.Error("event export failed", zap.String("patient_id", patientID), zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "events-"+patientID+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// BuildEventsXLSX renders a patient's event history as a workbook.
func BuildEventsXLSX(patientID string, events []monitoring.Event) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := "events"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Patient")
	_ = f.SetCellValue(sheet, "B1", patientID)
	for i, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, header)
	}
	for i, event := range events {
		row := i + 3
		for col, value := range exportRow(event) {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildEventsPDF renders a patient's event history as a table.
func BuildEventsPDF(patientID string, events []monitoring.Event) ([]byte, error) {
	widths := []float64{38, 30, 22, 28, 110, 38}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Monitoring events")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Patient: %s", patientID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Events: %d", len(events)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	for i, header := range exportHeaders {
		pdf.CellFormat(widths[i], 6, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, event := range events {
		for i, value := range exportRow(event) {
			pdf.CellFormat(widths[i], 6, value, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportRow(event monitoring.Event) []string {
	resolved := ""
	if event.ResolvedAt != nil {
		resolved = event.ResolvedAt.Format(time.RFC3339)
	}
	return []string{
		event.CreatedAt.Format(time.RFC3339),
		string(event.Type),
		string(event.Severity),
		string(event.Status),
		event.Message,
		resolved,
	}
}
