package slicejobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"log/slog"

	"slicerd/internal/config"
	"slicerd/internal/logging"
	"slicerd/internal/metrics"
	"slicerd/internal/slicer"
	"slicerd/internal/storage"
	"slicerd/internal/store"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrModelNotFound   = errors.New("model not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrJobNotFound     = errors.New("slice job not found")
)

// progressPersistInterval throttles database writes from progress callbacks.
const progressPersistInterval = 2 * time.Second

// CreateRequest describes a new slice job.
type CreateRequest struct {
	ModelID       string
	ProfileID     string
	Overrides     map[string]any
	OutputOptions *store.OutputOptions
	Metadata      map[string]any
}

// Runner creates slice jobs and drives them through their lifecycle in
// background goroutines.
type Runner struct {
	store   *store.Store
	storage *storage.Service
	client  slicer.Client
	logger  *slog.Logger
	timeout time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner constructs a runner. The timeout bounds each slicing invocation.
func NewRunner(cfg *config.Config, st *store.Store, svc *storage.Service, client slicer.Client, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   st,
		storage: svc,
		client:  client,
		logger:  logging.NewComponentLogger(logger, "slicejobs"),
		timeout: time.Duration(cfg.Slicer.TimeoutSeconds) * time.Second,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Create validates the request, snapshots the effective settings, persists
// the job as queued, and launches the background slicing task.
func (r *Runner) Create(ctx context.Context, req CreateRequest) (*store.SliceJob, error) {
	model, err := r.store.GetModel(ctx, req.ModelID)
	if err != nil {
		return nil, fmt.Errorf("lookup model: %w", err)
	}
	if model == nil {
		return nil, ErrModelNotFound
	}

	profile, err := r.store.GetProfile(ctx, req.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	options := store.DefaultOutputOptions()
	if req.OutputOptions != nil {
		options = *req.OutputOptions
	}

	job := &store.SliceJob{
		ID:                store.NewJobID(),
		ModelID:           model.ID,
		ProfileID:         profile.ID,
		Status:            store.JobStatusQueued,
		Overrides:         req.Overrides,
		OutputOptions:     options,
		ClientMetadata:    req.Metadata,
		EffectiveSettings: slicer.MergeSettings(profile.SettingsOverrides, req.Overrides),
	}
	if err := r.store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	r.logger.Info("slice job queued",
		logging.String("job_id", job.ID),
		logging.String("model_id", model.ID),
		logging.String("profile_id", profile.ID),
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.process(job.ID, model.StoragePath, profile.Name)
	}()

	return job, nil
}

// Get fetches a job by identifier.
func (r *Runner) Get(ctx context.Context, jobID string) (*store.SliceJob, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Shutdown stops accepting progress and waits for in-flight jobs to settle,
// or until the context expires.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

func (r *Runner) process(jobID, modelPath, profileName string) {
	logger := r.logger.With(logging.String("job_id", jobID))
	started := time.Now()

	ctx := r.baseCtx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	if err := r.store.MarkJobRunning(ctx, jobID); err != nil {
		logger.Error("failed to mark job running", logging.Error(err))
		return
	}

	err := r.execute(ctx, jobID, modelPath, profileName, logger)
	if err != nil {
		if failErr := r.store.FailJob(context.Background(), jobID, err.Error()); failErr != nil {
			logger.Error("failed to record job failure", logging.Error(failErr))
		}
		metrics.SliceJobsTotal.WithLabelValues("failed").Inc()
		metrics.SliceDuration.Observe(time.Since(started).Seconds())
		logger.Error("slice job failed", logging.Error(err))
	} else {
		metrics.SliceJobsTotal.WithLabelValues("completed").Inc()
		metrics.SliceDuration.Observe(time.Since(started).Seconds())
		logger.Info("slice job completed", logging.Duration("elapsed", time.Since(started)))
	}

	if cleanupErr := r.storage.CleanupJobWorkDir(jobID); cleanupErr != nil {
		logger.Warn("failed to clean work directory", logging.Error(cleanupErr))
	}
}

func (r *Runner) execute(ctx context.Context, jobID, modelPath, profileName string, logger *slog.Logger) error {
	if !r.client.Available() {
		return errors.New("slicer binary not found; check slicer.binary in the configuration")
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	if job == nil {
		return errors.New("job disappeared before execution")
	}

	workDir, err := r.storage.JobWorkDir(jobID)
	if err != nil {
		return err
	}
	outputDir, err := r.storage.JobOutputDir(jobID)
	if err != nil {
		return err
	}

	var lastPersisted time.Time
	progress := func(update slicer.ProgressUpdate) {
		if update.Percent < 0 {
			return
		}
		now := time.Now()
		if !lastPersisted.IsZero() && now.Sub(lastPersisted) < progressPersistInterval {
			return
		}
		lastPersisted = now
		if err := r.store.SetJobProgress(ctx, jobID, update.Percent); err != nil {
			logger.Warn("failed to persist progress", logging.Error(err))
		}
	}

	result, err := r.client.Slice(ctx, slicer.Request{
		ModelPath:   modelPath,
		WorkDir:     workDir,
		OutputDir:   outputDir,
		ProfileName: profileName,
		Settings:    job.EffectiveSettings,
		Export3MF:   job.OutputOptions.Project3MF,
	}, progress)
	if err != nil {
		return err
	}

	var gcodePath string
	if job.OutputOptions.GCode {
		if result.GCodePath == "" {
			return errors.New("slicer produced no gcode output")
		}
		gcodePath, err = r.storage.PromoteArtifact(jobID, result.GCodePath, "output.gcode")
		if err != nil {
			return err
		}
	}

	var projectPath string
	if job.OutputOptions.Project3MF {
		if _, statErr := os.Stat(result.Project3MFPath); statErr != nil {
			return fmt.Errorf("slicer produced no 3mf project: %w", statErr)
		}
		projectPath = result.Project3MFPath
	}

	var metadata *store.SliceMetadata
	if job.OutputOptions.MetadataJSON {
		metadata, err = slicer.ExtractMetadata(gcodePath, projectPath)
		if err != nil {
			logger.Warn("failed to extract slice metadata", logging.Error(err))
			metadata = nil
		}
	}

	if err := r.store.CompleteJob(ctx, jobID, gcodePath, projectPath, metadata); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}
