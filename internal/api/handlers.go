/**
 * @description
 * HTTP handlers for the batch trigger endpoints. Each handler runs the
 * corresponding batch job synchronously and writes its summary. Per-record
 * failures are already folded into the summary counts; a non-nil error from a
 * job means the ledger store itself could not be queried, which is reported
 * as a job-level 500.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For job logic and summary models.
 */

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/joseairosa/codesalvage-sub004/internal/domain"
)

// BatchRunner is the subset of the jobs runner the handlers need.
type BatchRunner interface {
	ReleaseEscrowBatch(ctx context.Context) (*domain.ReleaseBatchSummary, error)
	ProcessTransfersBatch(ctx context.Context) (*domain.TransferBatchSummary, error)
}

// CronHandlers holds the jobs runner that the trigger endpoints invoke.
type CronHandlers struct {
	jobs   BatchRunner
	logger *slog.Logger
}

// NewCronHandlers creates the handler set for the trigger endpoints.
func NewCronHandlers(jobs BatchRunner, logger *slog.Logger) *CronHandlers {
	return &CronHandlers{jobs: jobs, logger: logger}
}

// ReleaseEscrowHandler handles POST /cron/release-escrow.
func (h *CronHandlers) ReleaseEscrowHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.jobs.ReleaseEscrowBatch(r.Context())
	if err != nil {
		h.logger.Error("escrow release batch failed at job level", "error", err)
		respondError(w, http.StatusInternalServerError, "escrow release batch failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// ProcessTransfersHandler handles POST /cron/process-transfers.
func (h *CronHandlers) ProcessTransfersHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.jobs.ProcessTransfersBatch(r.Context())
	if err != nil {
		h.logger.Error("transfer batch failed at job level", "error", err)
		respondError(w, http.StatusInternalServerError, "transfer batch failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
