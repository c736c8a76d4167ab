package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"slicerd/internal/logging"
	"slicerd/internal/metrics"
	"slicerd/internal/storage"
	"slicerd/internal/store"
)

var supportedModelFormats = map[string]struct{}{
	"stl":  {},
	"step": {},
	"3mf":  {},
}

func (s *Server) handleUploadModel(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.Uploads.MaxSizeMiB)*1024*1024 + 1024*1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIError(w, validationError(map[string]any{
			"errors": "multipart upload with a 'file' field is required",
		}))
		return
	}
	defer file.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if _, ok := supportedModelFormats[format]; !ok {
		writeAPIError(w, unsupportedFormat(header.Filename, format))
		return
	}

	modelID := store.NewModelID()
	saved, err := s.storage.SaveModel(modelID, header.Filename, file)
	if err != nil {
		if errors.Is(err, storage.ErrUploadTooLarge) {
			writeAPIError(w, uploadTooLarge(s.cfg.Uploads.MaxSizeMiB))
			return
		}
		writeAPIError(w, internalError(err))
		return
	}

	model := &store.Model{
		ID:             modelID,
		Filename:       filepath.Base(header.Filename),
		Format:         format,
		SizeBytes:      saved.SizeBytes,
		ChecksumSHA256: saved.ChecksumSHA256,
		StoragePath:    saved.Path,
	}
	if err := s.store.InsertModel(r.Context(), model); err != nil {
		_ = s.storage.RemoveModel(modelID)
		writeAPIError(w, internalError(err))
		return
	}

	metrics.ModelUploadBytes.Observe(float64(saved.SizeBytes))
	s.logger.Info("model uploaded",
		logging.String("model_id", model.ID),
		logging.String("filename", model.Filename),
		logging.Int64("size_bytes", model.SizeBytes),
	)
	writeJSON(w, http.StatusCreated, newModelView(model))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	models, total, err := s.store.ListModels(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	items := make([]modelView, 0, len(models))
	for _, model := range models {
		items = append(items, newModelView(model))
	}
	writeJSON(w, http.StatusOK, modelListView{Items: items, Total: total})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")
	model, err := s.store.GetModel(r.Context(), modelID)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	if model == nil {
		writeAPIError(w, modelNotFound(modelID))
		return
	}
	writeJSON(w, http.StatusOK, newModelView(model))
}
