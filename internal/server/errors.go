package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// apiError is the structured error carried inside every non-2xx response.
type apiError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"http_status"`
	Details    map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func modelNotFound(modelID string) apiError {
	return apiError{
		Code:       "MODEL_NOT_FOUND",
		Message:    fmt.Sprintf("Model '%s' does not exist.", modelID),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"model_id": modelID},
	}
}

func profileNotFound(profileID string) apiError {
	return apiError{
		Code:       "PROFILE_NOT_FOUND",
		Message:    fmt.Sprintf("Profile '%s' does not exist or is not accessible.", profileID),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"profile_id": profileID},
	}
}

func sliceJobNotFound(jobID string) apiError {
	return apiError{
		Code:       "SLICE_JOB_NOT_FOUND",
		Message:    fmt.Sprintf("Slice job '%s' does not exist.", jobID),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"job_id": jobID},
	}
}

func unsupportedFormat(filename, format string) apiError {
	return apiError{
		Code:       "UNSUPPORTED_FORMAT",
		Message:    fmt.Sprintf("File format '%s' is not supported. Allowed: .stl, .step, .3mf.", format),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"filename": filename, "format": format},
	}
}

func uploadTooLarge(maxMiB int) apiError {
	return apiError{
		Code:       "UPLOAD_TOO_LARGE",
		Message:    fmt.Sprintf("Uploaded file exceeds the %d MiB limit.", maxMiB),
		HTTPStatus: http.StatusRequestEntityTooLarge,
		Details:    map[string]any{"max_size_mib": maxMiB},
	}
}

func jobNotCompleted(jobID, status string) apiError {
	return apiError{
		Code:       "JOB_NOT_COMPLETED",
		Message:    "Job is not completed yet.",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"job_id": jobID, "status": status},
	}
}

func fileNotFound(jobID, message string) apiError {
	return apiError{
		Code:       "FILE_NOT_FOUND",
		Message:    message,
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"job_id": jobID},
	}
}

func validationError(details map[string]any) apiError {
	return apiError{
		Code:       "VALIDATION_ERROR",
		Message:    "Request validation failed.",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func profileNameConflict(name string) apiError {
	return apiError{
		Code:       "PROFILE_NAME_CONFLICT",
		Message:    fmt.Sprintf("A profile named '%s' already exists.", name),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"name": name},
	}
}

func internalError(err error) apiError {
	return apiError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"error": err.Error()},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, apiErr apiError) {
	writeJSON(w, apiErr.HTTPStatus, errorEnvelope{Error: apiErr})
}
