package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle of a slice job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var allJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
}

var jobStatusSet = func() map[JobStatus]struct{} {
	set := make(map[JobStatus]struct{}, len(allJobStatuses))
	for _, status := range allJobStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := jobStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Profile sources.
const (
	ProfileSourceUser    = "user"
	ProfileSourceBuiltin = "builtin"
)

// Model represents an uploaded 3D geometry file. Models are immutable once
// stored; the checksum is computed during upload and never recomputed.
type Model struct {
	ID             string
	Filename       string
	Format         string
	SizeBytes      int64
	ChecksumSHA256 string
	StoragePath    string
	UploadedAt     time.Time
}

// Profile represents a named slicing configuration.
type Profile struct {
	ID                string
	Name              string
	Description       string
	Source            string
	Vendor            string
	MachineID         string
	ProcessID         string
	FilamentID        string
	SettingsOverrides map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProfilePatch carries a partial profile update. Nil pointers leave the
// corresponding field untouched. SettingsOverrides entries are merged key-wise
// into the stored mapping rather than replacing it wholesale.
type ProfilePatch struct {
	Name              *string
	Description       *string
	Vendor            *string
	MachineID         *string
	ProcessID         *string
	FilamentID        *string
	SettingsOverrides map[string]any
}

// IsZero reports whether the patch carries no changes.
func (p ProfilePatch) IsZero() bool {
	return p.Name == nil && p.Description == nil && p.Vendor == nil &&
		p.MachineID == nil && p.ProcessID == nil && p.FilamentID == nil &&
		p.SettingsOverrides == nil
}

// OutputOptions selects which artifacts a slice job produces.
type OutputOptions struct {
	GCode        bool `json:"gcode"`
	Project3MF   bool `json:"project_3mf"`
	MetadataJSON bool `json:"metadata_json"`
}

// DefaultOutputOptions mirrors the defaults applied when a job request omits
// output options entirely.
func DefaultOutputOptions() OutputOptions {
	return OutputOptions{GCode: true, Project3MF: false, MetadataJSON: true}
}

// BoundingBox is an axis-aligned extent in millimetres.
type BoundingBox struct {
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	Z float64 `json:"z,omitempty"`
}

// SliceMetadata is the fixed result schema extracted from slicer output.
// Fields the slicer did not report stay nil and are omitted from JSON.
type SliceMetadata struct {
	EstimatedPrintTimeSeconds  *int64       `json:"estimated_print_time_seconds,omitempty"`
	ModelPrintTimeSeconds      *int64       `json:"model_print_time_seconds,omitempty"`
	FirstLayerPrintTimeSeconds *int64       `json:"first_layer_print_time_seconds,omitempty"`
	FilamentUsedMM             *float64     `json:"filament_used_mm,omitempty"`
	FilamentUsedG              *float64     `json:"filament_used_g,omitempty"`
	FilamentType               *string      `json:"filament_type,omitempty"`
	LayerCount                 *int         `json:"layer_count,omitempty"`
	BoundingBoxMM              *BoundingBox `json:"bounding_box_mm,omitempty"`
}

// IsZero reports whether no field was populated.
func (m SliceMetadata) IsZero() bool {
	return m == SliceMetadata{}
}

// SliceJob represents one slicing request tracked through its lifecycle.
// EffectiveSettings is the merge of the profile's overrides and the job's
// own overrides, snapshotted when the job is created so later profile edits
// cannot change a queued job.
type SliceJob struct {
	ID                string
	ModelID           string
	ProfileID         string
	Status            JobStatus
	Overrides         map[string]any
	OutputOptions     OutputOptions
	ClientMetadata    map[string]any
	EffectiveSettings map[string]any
	QueuedAt          time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	ProgressPercent   *float64
	GCodePath         string
	Project3MFPath    string
	OutputMetadata    *SliceMetadata
	ErrorMessage      string
}

// NewModelID generates a fresh model identifier.
func NewModelID() string {
	return "mdl_" + shortID()
}

// NewJobID generates a fresh slice job identifier.
func NewJobID() string {
	return "job_" + shortID()
}

// NewProfileID generates a profile identifier derived from the profile name,
// suffixed for uniqueness.
func NewProfileID(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "_")
	var b strings.Builder
	for _, r := range slug {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		cleaned = "profile"
	}
	if len(cleaned) > 40 {
		cleaned = cleaned[:40]
	}
	return "prof_" + cleaned + "_" + shortID()[:4]
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
