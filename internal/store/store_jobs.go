package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, model_id, profile_id, status, overrides, output_options, client_metadata, effective_settings, queued_at, started_at, finished_at, progress_percent, gcode_path, project_3mf_path, output_metadata, error_message"

// ErrInvalidTransition is returned when a lifecycle update targets a job not
// in the expected prior status.
var ErrInvalidTransition = errors.New("job is not in the expected status")

// InsertJob persists a new slice job in queued status.
func (s *Store) InsertJob(ctx context.Context, job *SliceJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.Status == "" {
		job.Status = JobStatusQueued
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}

	overrides, err := marshalMap(job.Overrides)
	if err != nil {
		return err
	}
	clientMeta, err := marshalMap(job.ClientMetadata)
	if err != nil {
		return err
	}
	effective, err := marshalMap(job.EffectiveSettings)
	if err != nil {
		return err
	}
	options, err := json.Marshal(job.OutputOptions)
	if err != nil {
		return fmt.Errorf("marshal output options: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO slice_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.ModelID,
		job.ProfileID,
		string(job.Status),
		overrides,
		string(options),
		clientMeta,
		effective,
		job.QueuedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		nullableFloat(job.ProgressPercent),
		nullableString(job.GCodePath),
		nullableString(job.Project3MFPath),
		nil,
		nullableString(job.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("insert slice job: %w", err)
	}
	return nil
}

// GetJob fetches a slice job by identifier. Returns (nil, nil) when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*SliceJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM slice_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slice job: %w", err)
	}
	return job, nil
}

// ListJobs returns a page of jobs newest first, optionally filtered by
// status, plus the total matching count.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, limit, offset int) ([]*SliceJob, int, error) {
	where := ""
	countArgs := []any{}
	if status != "" {
		where = " WHERE status = ?"
		countArgs = append(countArgs, string(status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM slice_jobs`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count slice jobs: %w", err)
	}

	args := append(countArgs, limit, offset)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM slice_jobs`+where+` ORDER BY queued_at DESC, id LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list slice jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*SliceJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// MarkJobRunning transitions a queued job to running. Fails with
// ErrInvalidTransition when the job is not queued.
func (s *Store) MarkJobRunning(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE slice_jobs SET status = ?, started_at = ?, progress_percent = 0
		 WHERE id = ? AND status = ?`,
		string(JobStatusRunning),
		now.Format(time.RFC3339Nano),
		id,
		string(JobStatusQueued),
	)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return requireTransition(result)
}

// SetJobProgress records progress for a running job. Progress updates on
// jobs that already left running status are ignored.
func (s *Store) SetJobProgress(ctx context.Context, id string, percent float64) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE slice_jobs SET progress_percent = ? WHERE id = ? AND status = ?`,
		percent, id, string(JobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("set job progress: %w", err)
	}
	return nil
}

// CompleteJob transitions a running job to completed, recording its
// artifacts and extracted metadata.
func (s *Store) CompleteJob(ctx context.Context, id, gcodePath, projectPath string, metadata *SliceMetadata) error {
	var metaValue any
	if metadata != nil && !metadata.IsZero() {
		data, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal slice metadata: %w", err)
		}
		metaValue = string(data)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE slice_jobs SET status = ?, finished_at = ?, progress_percent = 100,
		 gcode_path = ?, project_3mf_path = ?, output_metadata = ?, error_message = NULL
		 WHERE id = ? AND status = ?`,
		string(JobStatusCompleted),
		now.Format(time.RFC3339Nano),
		nullableString(gcodePath),
		nullableString(projectPath),
		metaValue,
		id,
		string(JobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireTransition(result)
}

// FailJob transitions a running or queued job to failed with a diagnostic
// message. Queued jobs can fail when their launch itself errors out.
func (s *Store) FailJob(ctx context.Context, id, message string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE slice_jobs SET status = ?, finished_at = ?, error_message = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(JobStatusFailed),
		now.Format(time.RFC3339Nano),
		truncateMessage(message),
		id,
		string(JobStatusRunning),
		string(JobStatusQueued),
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireTransition(result)
}

// JobStats counts jobs per status.
func (s *Store) JobStats(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM slice_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[JobStatus]int, len(allJobStatuses))
	for _, status := range allJobStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, err
		}
		if status, ok := ParseJobStatus(raw); ok {
			stats[status] = count
		}
	}
	return stats, rows.Err()
}

// maxErrorMessageLen bounds stored failure diagnostics so a pathological
// slicer log cannot bloat the database.
const maxErrorMessageLen = 2000

func truncateMessage(message string) string {
	if len(message) <= maxErrorMessageLen {
		return message
	}
	return message[:maxErrorMessageLen] + "… (truncated)"
}

func requireTransition(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*SliceJob, error) {
	var (
		job          SliceJob
		statusRaw    string
		overrides    sql.NullString
		optionsRaw   string
		clientMeta   sql.NullString
		effective    sql.NullString
		queuedRaw    string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		progress     sql.NullFloat64
		gcodePath    sql.NullString
		projectPath  sql.NullString
		metadataRaw  sql.NullString
		errorMessage sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ModelID,
		&job.ProfileID,
		&statusRaw,
		&overrides,
		&optionsRaw,
		&clientMeta,
		&effective,
		&queuedRaw,
		&startedRaw,
		&finishedRaw,
		&progress,
		&gcodePath,
		&projectPath,
		&metadataRaw,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	status, ok := ParseJobStatus(statusRaw)
	if !ok {
		return nil, fmt.Errorf("unknown job status %q", statusRaw)
	}
	job.Status = status

	var err error
	if job.Overrides, err = unmarshalMap(overrides); err != nil {
		return nil, err
	}
	if job.ClientMetadata, err = unmarshalMap(clientMeta); err != nil {
		return nil, err
	}
	if job.EffectiveSettings, err = unmarshalMap(effective); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsRaw), &job.OutputOptions); err != nil {
		return nil, fmt.Errorf("unmarshal output options: %w", err)
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		var metadata SliceMetadata
		if err := json.Unmarshal([]byte(metadataRaw.String), &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal slice metadata: %w", err)
		}
		job.OutputMetadata = &metadata
	}

	if queued, err := parseTimeString(queuedRaw); err == nil {
		job.QueuedAt = queued
	}
	job.StartedAt = parseNullableTime(startedRaw)
	job.FinishedAt = parseNullableTime(finishedRaw)
	if progress.Valid {
		value := progress.Float64
		job.ProgressPercent = &value
	}
	job.GCodePath = gcodePath.String
	job.Project3MFPath = projectPath.String
	job.ErrorMessage = errorMessage.String
	return &job, nil
}
