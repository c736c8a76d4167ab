package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"slicerd/internal/config"
)

// ErrUploadTooLarge is returned when an upload exceeds the configured limit.
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

// Service owns the on-disk layout for models, job workspaces, and job
// outputs underneath the configured data directory.
type Service struct {
	modelsDir  string
	outputsDir string
	workDir    string
	maxBytes   int64
}

// SavedModel describes a model file written to storage.
type SavedModel struct {
	Path           string
	SizeBytes      int64
	ChecksumSHA256 string
}

// New builds a storage service from configuration. Directories are created
// lazily when files are written.
func New(cfg *config.Config) *Service {
	return &Service{
		modelsDir:  cfg.ModelsDir(),
		outputsDir: cfg.OutputsDir(),
		workDir:    cfg.WorkDir(),
		maxBytes:   int64(cfg.Uploads.MaxSizeMiB) * 1024 * 1024,
	}
}

// SaveModel streams an upload into the model's storage directory, computing
// size and SHA-256 in a single pass. The upload is rejected and removed when
// it exceeds the configured size limit.
func (s *Service) SaveModel(modelID, filename string, reader io.Reader) (*SavedModel, error) {
	dir := filepath.Join(s.modelsDir, modelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model directory: %w", err)
	}

	path := filepath.Join(dir, sanitizeFilename(filename))
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create model file: %w", err)
	}

	hasher := sha256.New()
	limited := io.LimitReader(reader, s.maxBytes+1)
	written, err := io.Copy(io.MultiWriter(out, hasher), limited)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("write model file: %w", err)
	}
	if written > s.maxBytes {
		_ = os.RemoveAll(dir)
		return nil, ErrUploadTooLarge
	}

	return &SavedModel{
		Path:           path,
		SizeBytes:      written,
		ChecksumSHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// RemoveModel deletes a model's storage directory.
func (s *Service) RemoveModel(modelID string) error {
	if modelID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.modelsDir, modelID))
}

// JobWorkDir creates and returns the scratch directory for a job. The slicer
// runs with this as its working directory for settings and intermediate
// files; it writes artifacts straight into the job's output directory, where
// the gcode is then renamed to its published name.
func (s *Service) JobWorkDir(jobID string) (string, error) {
	dir := filepath.Join(s.workDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job work directory: %w", err)
	}
	return dir, nil
}

// JobOutputDir creates and returns the durable output directory for a job.
func (s *Service) JobOutputDir(jobID string) (string, error) {
	dir := filepath.Join(s.outputsDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job output directory: %w", err)
	}
	return dir, nil
}

// CleanupJobWorkDir removes a job's scratch directory. Safe to call when the
// directory never existed.
func (s *Service) CleanupJobWorkDir(jobID string) error {
	if jobID == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(s.workDir, jobID))
}

// PromoteArtifact moves a file from a job's work directory into its output
// directory under the given name. Falls back to copy+remove when rename
// crosses filesystems.
func (s *Service) PromoteArtifact(jobID, srcPath, name string) (string, error) {
	outDir, err := s.JobOutputDir(jobID)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, name)
	if err := os.Rename(srcPath, dst); err == nil {
		return dst, nil
	}
	if err := copyFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("promote artifact %s: %w", name, err)
	}
	_ = os.Remove(srcPath)
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// sanitizeFilename strips path components and characters that would escape
// the model directory, keeping the original extension intact.
func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.ReplaceAll(base, "..", "")
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "model.bin"
	}
	return base
}
