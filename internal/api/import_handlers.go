package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skuline/product-import/internal/catalog"
	"github.com/skuline/product-import/internal/progress"
	"github.com/skuline/product-import/internal/queue"
)

// createImport handles POST /v1/imports. It allocates a pending job with a
// deterministic object key and hands the client a signed PUT URL so the CSV
// upload bypasses the service entirely.
func (s *Server) createImport(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("generate job id failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to allocate job")
		return
	}
	fileKey := fmt.Sprintf("imports/%s.csv", jobID)

	now := s.clock.Now().UTC()
	job := catalog.ImportJob{
		ID:        jobID,
		FileKey:   fileKey,
		Status:    catalog.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		s.logger.Error("create import job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to create job")
		return
	}

	uploadURL, err := s.objects.SignedPutURL(r.Context(), fileKey, "text/csv", s.cfg.UploadURLTTL)
	if err != nil {
		s.logger.Error("sign upload url failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to sign upload url")
		return
	}

	writeJSON(s.logger, w, http.StatusCreated, map[string]any{
		"job_id":     jobID,
		"file_key":   fileKey,
		"status":     string(catalog.JobStatusPending),
		"upload_url": uploadURL,
	})
}

// startImport handles POST /v1/imports/{job_id}/start. Only pending jobs and
// failed jobs (restart) may start; the transition to queued clears any prior
// error detail before the import task is enqueued.
func (s *Server) startImport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get import job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load job")
		return
	}

	if job.Status != catalog.JobStatusPending && job.Status != catalog.JobStatusFailed {
		writeError(s.logger, w, http.StatusBadRequest,
			fmt.Sprintf("job cannot start from status %q", job.Status))
		return
	}

	if err := s.jobs.UpdateJobStatus(r.Context(), jobID, catalog.JobStatusQueued, ""); err != nil {
		s.logger.Error("queue import job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to queue job")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.tasks.Enqueue(queueCtx, queue.NewImportTask(jobID, s.clock.Now())); err != nil {
		s.logger.Error("enqueue import task failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(catalog.JobStatusQueued),
	})
}

// getImportStatus handles GET /v1/imports/{job_id}/status. The processed
// count comes from the tracker, which prefers the fresh cache tier and falls
// back to the durable row.
func (s *Server) getImportStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if isNotFound(err) {
			writeError(s.logger, w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get import job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load job")
		return
	}

	snap, err := s.tracker.Read(r.Context(), jobID)
	if err != nil {
		s.logger.Error("read progress failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to read progress")
		return
	}
	job.ProcessedRows = snap.Processed

	writeJSON(s.logger, w, http.StatusOK, toStatusDTO(job, snap))
}

type statusDTO struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	FileKey        string  `json:"file_key"`
	TotalRows      *int64  `json:"total_rows"`
	ProcessedRows  int64   `json:"processed_rows"`
	Percentage     float64 `json:"percentage"`
	ErrorDetail    string  `json:"error_detail,omitempty"`
	ProgressSource string  `json:"progress_source"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func toStatusDTO(job catalog.ImportJob, snap progress.Snapshot) statusDTO {
	return statusDTO{
		JobID:          job.ID,
		Status:         string(job.Status),
		FileKey:        job.FileKey,
		TotalRows:      job.TotalRows,
		ProcessedRows:  job.ProcessedRows,
		Percentage:     job.ProgressPercent(),
		ErrorDetail:    job.ErrorDetail,
		ProgressSource: string(snap.Source),
		CreatedAt:      job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
