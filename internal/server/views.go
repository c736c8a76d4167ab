package server

import (
	"fmt"
	"time"

	"slicerd/internal/store"
)

type modelView struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	Format         string    `json:"format"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedAt     time.Time `json:"uploaded_at"`
	ChecksumSHA256 string    `json:"checksum_sha256"`
	StoragePath    string    `json:"storage_path"`
}

type modelListView struct {
	Items []modelView `json:"items"`
	Total int         `json:"total"`
}

func newModelView(model *store.Model) modelView {
	return modelView{
		ID:             model.ID,
		Filename:       model.Filename,
		Format:         model.Format,
		SizeBytes:      model.SizeBytes,
		UploadedAt:     model.UploadedAt,
		ChecksumSHA256: model.ChecksumSHA256,
		StoragePath:    model.StoragePath,
	}
}

type profileView struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	Source            string         `json:"source"`
	Vendor            string         `json:"vendor,omitempty"`
	MachineID         string         `json:"machine_id,omitempty"`
	ProcessID         string         `json:"process_id,omitempty"`
	FilamentID        string         `json:"filament_id,omitempty"`
	SettingsOverrides map[string]any `json:"settings_overrides,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type profileListView struct {
	Items []profileView `json:"items"`
	Total int           `json:"total"`
}

type profileDeleteView struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func newProfileView(profile *store.Profile) profileView {
	return profileView{
		ID:                profile.ID,
		Name:              profile.Name,
		Description:       profile.Description,
		Source:            profile.Source,
		Vendor:            profile.Vendor,
		MachineID:         profile.MachineID,
		ProcessID:         profile.ProcessID,
		FilamentID:        profile.FilamentID,
		SettingsOverrides: profile.SettingsOverrides,
		CreatedAt:         profile.CreatedAt,
		UpdatedAt:         profile.UpdatedAt,
	}
}

type jobOutputView struct {
	GCodeURL      string               `json:"gcode_url,omitempty"`
	Project3MFURL string               `json:"project_3mf_url,omitempty"`
	Metadata      *store.SliceMetadata `json:"metadata,omitempty"`
}

type jobView struct {
	ID              string              `json:"id"`
	ModelID         string              `json:"model_id"`
	ProfileID       string              `json:"profile_id"`
	Status          string              `json:"status"`
	QueuedAt        time.Time           `json:"queued_at"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	FinishedAt      *time.Time          `json:"finished_at,omitempty"`
	ProgressPercent *float64            `json:"progress_percent,omitempty"`
	Overrides       map[string]any      `json:"overrides,omitempty"`
	OutputOptions   store.OutputOptions `json:"output_options"`
	Output          *jobOutputView      `json:"output,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty"`
}

type jobListView struct {
	Items []jobView `json:"items"`
	Total int       `json:"total"`
}

func newJobView(job *store.SliceJob) jobView {
	view := jobView{
		ID:              job.ID,
		ModelID:         job.ModelID,
		ProfileID:       job.ProfileID,
		Status:          string(job.Status),
		QueuedAt:        job.QueuedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		ProgressPercent: job.ProgressPercent,
		Overrides:       job.Overrides,
		OutputOptions:   job.OutputOptions,
		ErrorMessage:    job.ErrorMessage,
	}
	if job.Status == store.JobStatusCompleted {
		output := &jobOutputView{Metadata: job.OutputMetadata}
		if job.GCodePath != "" {
			output.GCodeURL = fmt.Sprintf("/slice-jobs/%s/gcode", job.ID)
		}
		if job.Project3MFPath != "" {
			output.Project3MFURL = fmt.Sprintf("/slice-jobs/%s/project.3mf", job.ID)
		}
		view.Output = output
	}
	return view
}

type healthView struct {
	Status          string `json:"status"`
	SlicerAvailable bool   `json:"slicer_available"`
	SlicerVersion   string `json:"slicer_version,omitempty"`
	ProfilesLoaded  int    `json:"profiles_loaded"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}
