package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"slicerd/internal/logging"
	"slicerd/internal/store"
)

type createProfileRequest struct {
	Name              string         `json:"name" validate:"required,min=1,max=200"`
	Description       string         `json:"description"`
	Source            string         `json:"source" validate:"omitempty,oneof=user builtin"`
	Vendor            string         `json:"vendor"`
	MachineID         string         `json:"machine_id"`
	ProcessID         string         `json:"process_id"`
	FilamentID        string         `json:"filament_id"`
	SettingsOverrides map[string]any `json:"settings_overrides"`
}

type updateProfileRequest struct {
	Name              *string        `json:"name" validate:"omitempty,min=1,max=200"`
	Description       *string        `json:"description"`
	Vendor            *string        `json:"vendor"`
	MachineID         *string        `json:"machine_id"`
	ProcessID         *string        `json:"process_id"`
	FilamentID        *string        `json:"filament_id"`
	SettingsOverrides map[string]any `json:"settings_overrides"`
}

// decodeAndValidate parses a JSON body and runs struct validation, writing
// the VALIDATION_ERROR envelope itself on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		writeAPIError(w, validationError(map[string]any{"errors": "request body is not valid JSON: " + err.Error()}))
		return false
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			details := make([]map[string]any, 0, len(fieldErrors))
			for _, fieldErr := range fieldErrors {
				details = append(details, map[string]any{
					"field":      fieldErr.Field(),
					"constraint": fieldErr.Tag(),
				})
			}
			writeAPIError(w, validationError(map[string]any{"errors": details}))
			return false
		}
		writeAPIError(w, validationError(map[string]any{"errors": err.Error()}))
		return false
	}
	return true
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	source := req.Source
	if source == "" {
		source = store.ProfileSourceUser
	}
	profile := &store.Profile{
		ID:                store.NewProfileID(req.Name),
		Name:              req.Name,
		Description:       req.Description,
		Source:            source,
		Vendor:            req.Vendor,
		MachineID:         req.MachineID,
		ProcessID:         req.ProcessID,
		FilamentID:        req.FilamentID,
		SettingsOverrides: req.SettingsOverrides,
	}
	if err := s.store.CreateProfile(r.Context(), profile); err != nil {
		if errors.Is(err, store.ErrProfileNameTaken) {
			writeAPIError(w, profileNameConflict(req.Name))
			return
		}
		writeAPIError(w, internalError(err))
		return
	}

	s.logger.Info("profile created",
		logging.String("profile_id", profile.ID),
		logging.String("name", profile.Name),
	)
	writeJSON(w, http.StatusCreated, newProfileView(profile))
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source != "" && source != store.ProfileSourceUser && source != store.ProfileSourceBuiltin {
		writeAPIError(w, validationError(map[string]any{
			"errors": "source must be 'user' or 'builtin'",
		}))
		return
	}

	limit, offset := parsePage(r)
	profiles, total, err := s.store.ListProfiles(r.Context(), source, limit, offset)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	items := make([]profileView, 0, len(profiles))
	for _, profile := range profiles {
		items = append(items, newProfileView(profile))
	}
	writeJSON(w, http.StatusOK, profileListView{Items: items, Total: total})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	profile, err := s.store.GetProfile(r.Context(), profileID)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	if profile == nil {
		writeAPIError(w, profileNotFound(profileID))
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(profile))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	var req updateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	patch := store.ProfilePatch{
		Name:              req.Name,
		Description:       req.Description,
		Vendor:            req.Vendor,
		MachineID:         req.MachineID,
		ProcessID:         req.ProcessID,
		FilamentID:        req.FilamentID,
		SettingsOverrides: req.SettingsOverrides,
	}
	profile, err := s.store.UpdateProfile(r.Context(), profileID, patch)
	if err != nil {
		if errors.Is(err, store.ErrProfileNameTaken) {
			writeAPIError(w, profileNameConflict(*req.Name))
			return
		}
		writeAPIError(w, internalError(err))
		return
	}
	if profile == nil {
		writeAPIError(w, profileNotFound(profileID))
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(profile))
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")
	deleted, err := s.store.DeleteProfile(r.Context(), profileID)
	if err != nil {
		writeAPIError(w, internalError(err))
		return
	}
	if !deleted {
		writeAPIError(w, profileNotFound(profileID))
		return
	}
	writeJSON(w, http.StatusOK, profileDeleteView{ID: profileID, Deleted: true})
}
