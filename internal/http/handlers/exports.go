package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/cache"
	"github.com/iago/reportflow/internal/domain"
	"github.com/iago/reportflow/internal/http/middleware"
	"github.com/iago/reportflow/internal/service"
)

type exportRequest struct {
	Format  string          `json:"format" validate:"required,oneof=PDF EXCEL CSV JSON HTML PNG"`
	Options json.RawMessage `json:"options"`
}

// idempotencyFingerprint is what a replayed Idempotency-Key must match.
type idempotencyFingerprint struct {
	ReportID string          `json:"report_id"`
	UserID   string          `json:"user_id"`
	Format   string          `json:"format"`
	Options  json.RawMessage `json:"options,omitempty"`
}

// RequestExport queues an export of the report. A repeated Idempotency-Key
// with the same payload answers with the job created the first time.
func (api *API) RequestExport(w http.ResponseWriter, r *http.Request) {
	reportID, ok := pathID(w, r, "reportID")
	if !ok {
		return
	}
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" && (len(idempotencyKey) < minIdempotencyKeyLen || len(idempotencyKey) > maxIdempotencyKeyLen) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "Idempotency-Key must be between 8 and 128 characters")
		return
	}

	var request exportRequest
	if !api.decode(w, r, &request) {
		return
	}
	format, err := domain.ParseExportFormat(request.Format)
	if err != nil {
		writeErrorDetail(w, r, http.StatusBadRequest, errorDetail{Code: "validation_failed", Message: err.Error(), Field: "format"})
		return
	}

	var payloadHash string
	scopedKey := actor.UserID.String() + ":" + idempotencyKey
	if idempotencyKey != "" {
		payloadHash = cache.Signature(idempotencyFingerprint{
			ReportID: reportID.String(),
			UserID:   actor.UserID.String(),
			Format:   request.Format,
			Options:  request.Options,
		})
		if entry, exists := api.idempotency.Get(scopedKey); exists {
			api.replayExport(w, r, entry, payloadHash)
			return
		}
	}

	job, err := api.exports.Request(r.Context(), service.RequestExportInput{
		ReportID:       reportID,
		Format:         format,
		UserID:         actor.UserID,
		OrganizationID: actor.OrganizationID,
		Options:        request.Options,
	})
	if err != nil {
		if job != nil {
			api.logger.Warn("export saved but not queued",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("export_job_id", job.ID().String()),
				zap.Error(err),
			)
			w.Header().Set("Location", exportPath(job.ID()))
			w.Header().Set("Retry-After", "5")
			writeErrorDetail(w, r, http.StatusServiceUnavailable, errorDetail{
				Code:    "queue_unavailable",
				Message: "export job " + job.ID().String() + " was saved as FAILED and can be retried",
			})
			return
		}
		api.writeServiceError(w, r, err)
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Set(scopedKey, idempotencyEntry{PayloadHash: payloadHash, JobID: job.ID().String()})
	}
	w.Header().Set("Location", exportPath(job.ID()))
	w.Header().Set("Retry-After", "2")
	writeJSON(w, http.StatusAccepted, newExportResponse(job))
}

func (api *API) replayExport(w http.ResponseWriter, r *http.Request, entry idempotencyEntry, payloadHash string) {
	if entry.PayloadHash != payloadHash {
		writeError(w, r, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
		return
	}
	jobID, err := domain.ParseID(entry.JobID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	job, err := api.exports.Get(r.Context(), jobID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.Header().Set(idempotencyReplayedHdr, "true")
	w.Header().Set("Location", exportPath(job.ID()))
	writeJSON(w, http.StatusOK, newExportResponse(job))
}

func (api *API) ListReportExports(w http.ResponseWriter, r *http.Request) {
	reportID, ok := pathID(w, r, "reportID")
	if !ok {
		return
	}
	jobs, err := api.exports.ListByReport(r.Context(), reportID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPayload[exportResponse]{
		Items: mapSlice(jobs, newExportResponse),
		Total: len(jobs),
	})
}

func (api *API) GetExport(w http.ResponseWriter, r *http.Request) {
	api.exportAction(w, r, api.exports.Get)
}

func (api *API) CancelExport(w http.ResponseWriter, r *http.Request) {
	api.exportAction(w, r, api.exports.Cancel)
}

func (api *API) RetryExport(w http.ResponseWriter, r *http.Request) {
	api.exportAction(w, r, api.exports.Retry)
}

// DownloadExport redirects to the stored file of a completed export.
func (api *API) DownloadExport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "exportID")
	if !ok {
		return
	}
	job, err := api.exports.Get(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if job.Status() != domain.ExportJobStatusCompleted || job.DownloadURL() == "" {
		writeError(w, r, http.StatusConflict, "export_not_ready", "export is "+string(job.Status()))
		return
	}
	http.Redirect(w, r, job.DownloadURL(), http.StatusFound)
}

func (api *API) exportAction(w http.ResponseWriter, r *http.Request, apply func(context.Context, domain.ID) (*domain.ExportJob, error)) {
	id, ok := pathID(w, r, "exportID")
	if !ok {
		return
	}
	job, err := apply(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExportResponse(job))
}
