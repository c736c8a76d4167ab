package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slicerd/internal/testsupport"
)

func newTestService(t *testing.T, maxMiB int) *Service {
	t.Helper()
	return New(testsupport.NewConfig(t, testsupport.WithUploadLimit(maxMiB)))
}

func TestSaveModelComputesChecksum(t *testing.T) {
	svc := newTestService(t, 1)
	content := "solid benchy\nendsolid benchy\n"

	saved, err := svc.SaveModel("mdl_abc", "benchy.stl", strings.NewReader(content))
	if err != nil {
		t.Fatalf("save model: %v", err)
	}
	if saved.SizeBytes != int64(len(content)) {
		t.Fatalf("size = %d, want %d", saved.SizeBytes, len(content))
	}

	sum := sha256.Sum256([]byte(content))
	if saved.ChecksumSHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum = %s", saved.ChecksumSHA256)
	}

	data, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != content {
		t.Fatal("stored content differs")
	}
}

func TestSaveModelRejectsOversizedUpload(t *testing.T) {
	svc := newTestService(t, 1)
	big := strings.NewReader(strings.Repeat("x", 1024*1024+1))

	_, err := svc.SaveModel("mdl_big", "big.stl", big)
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("err = %v, want ErrUploadTooLarge", err)
	}
	if _, statErr := os.Stat(filepath.Join(svc.modelsDir, "mdl_big")); !os.IsNotExist(statErr) {
		t.Fatal("oversized upload left files behind")
	}
}

func TestSaveModelSanitizesFilename(t *testing.T) {
	svc := newTestService(t, 1)

	saved, err := svc.SaveModel("mdl_evil", "../../etc/passwd", strings.NewReader("data"))
	if err != nil {
		t.Fatalf("save model: %v", err)
	}
	rel, err := filepath.Rel(svc.modelsDir, saved.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("path escaped models dir: %s", saved.Path)
	}
}

func TestPromoteArtifact(t *testing.T) {
	svc := newTestService(t, 1)

	workDir, err := svc.JobWorkDir("job_1")
	if err != nil {
		t.Fatalf("work dir: %v", err)
	}
	src := filepath.Join(workDir, "benchy.gcode")
	testsupport.WriteFile(t, src, 32)

	dst, err := svc.PromoteArtifact("job_1", src, "output.gcode")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if filepath.Base(dst) != "output.gcode" {
		t.Fatalf("dst = %s", dst)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("promoted file missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source still present after promote")
	}

	if err := svc.CleanupJobWorkDir("job_1"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Fatal("work dir survived cleanup")
	}
}
