package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"slicerd/internal/slicejobs"
	"slicerd/internal/store"
)

type createJobRequest struct {
	ModelID       string               `json:"model_id" validate:"required"`
	ProfileID     string               `json:"profile_id" validate:"required"`
	Overrides     map[string]any       `json:"overrides"`
	OutputOptions *store.OutputOptions `json:"output_options"`
	Metadata      map[string]any       `json:"metadata"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	job, err := s.runner.Create(r.Context(), slicejobs.CreateRequest{
		ModelID:       req.ModelID,
		ProfileID:     req.ProfileID,
		Overrides:     req.Overrides,
		OutputOptions: req.OutputOptions,
		Metadata:      req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, slicejobs.ErrModelNotFound):
			writeAPIError(w, modelNotFound(req.ModelID))
		case errors.Is(err, slicejobs.ErrProfileNotFound):
			writeAPIError(w, profileNotFound(req.ProfileID))
		default:
			writeAPIError(w, internalError(err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, newJobView(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var status store.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, ok := store.ParseJobStatus(raw)
		if !ok {
			writeAPIError(w, validationError(map[string]any{
				"errors": "status must be one of queued, running, completed, failed",
			}))
			return
		}
		status = parsed
	}

	limit, offset := parsePage(r)
	jobs, total, err := s.store.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	items := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, newJobView(job))
	}
	writeJSON(w, http.StatusOK, jobListView{Items: items, Total: total})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	if job == nil {
		writeAPIError(w, sliceJobNotFound(jobID))
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *Server) handleDownloadGCode(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "gcode")
}

func (s *Server) handleDownloadProject(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "project.3mf")
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, kind string) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	if job == nil {
		writeAPIError(w, sliceJobNotFound(jobID))
		return
	}
	if job.Status != store.JobStatusCompleted {
		writeAPIError(w, jobNotCompleted(jobID, string(job.Status)))
		return
	}

	var path, downloadName, missingMessage string
	switch kind {
	case "gcode":
		path = job.GCodePath
		downloadName = fmt.Sprintf("%s_output.gcode", jobID)
		missingMessage = "G-code file not found."
	default:
		path = job.Project3MFPath
		downloadName = fmt.Sprintf("%s_project.3mf", jobID)
		missingMessage = "3MF project file not found."
	}

	if path == "" {
		writeAPIError(w, fileNotFound(jobID, missingMessage))
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeAPIError(w, fileNotFound(jobID, missingMessage))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	http.ServeFile(w, r, path)
}
