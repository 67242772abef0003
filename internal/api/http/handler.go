package http

import (
	"context"
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/veranemoloko/index-mirror/internal/domain"
	"github.com/veranemoloko/index-mirror/internal/progress"
	"github.com/veranemoloko/index-mirror/internal/validation"
)

// LedgerReader is the read side of the ledger used by the status API.
type LedgerReader interface {
	Snapshot(ctx context.Context) ([]domain.Record, error)
	Counts(ctx context.Context) (domain.Counts, error)
}

// ProgressReader exposes the run's progress tracker.
type ProgressReader interface {
	Snapshot() progress.Snapshot
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Ledger     domain.Counts     `json:"ledger"`
	Progress   progress.Snapshot `json:"progress"`
	BytesHuman string            `json:"bytes_human"`
}

// StatusHandler handles HTTP requests for run status.
type StatusHandler struct {
	ledger   LedgerReader
	progress ProgressReader
	logger   *slog.Logger
}

// NewStatusHandler creates a new StatusHandler with the provided sources and logger.
func NewStatusHandler(ledger LedgerReader, progress ProgressReader, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		ledger:   ledger,
		progress: progress,
		logger:   logger,
	}
}

// GetStatus handles GET /status with ledger counts and live progress.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.ledger.Counts(r.Context())
	if err != nil {
		h.logger.Error("failed to count ledger records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	snap := h.progress.Snapshot()
	writeJSON(w, http.StatusOK, StatusResponse{
		Ledger:     counts,
		Progress:   snap,
		BytesHuman: progress.FormatBytes(snap.Bytes),
	})
}

// ListRecords handles GET /records, optionally filtered by ?status=.
func (h *StatusHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	if err := validation.ValidateStatusFilter(filter); err != nil {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	records, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to read ledger", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if filter != "" {
		want, _ := domain.ParseRecordStatus(filter)
		filtered := records[:0]
		for _, rec := range records {
			if rec.Status == want {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
