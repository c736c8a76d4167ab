package slicer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"slicerd/internal/testsupport"
)

func TestNewCLIWithBinary(t *testing.T) {
	cli := NewCLI(WithBinary("/opt/orcaslicer"))
	if cli.binary != "/opt/orcaslicer" {
		t.Fatalf("expected binary override to be applied, got %q", cli.binary)
	}
}

func TestCLISliceRequiresModelPath(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Slice(context.Background(), Request{OutputDir: "/tmp"}, nil); err == nil {
		t.Fatal("expected error when model path is empty")
	}
}

func TestCLISliceRequiresOutputDir(t *testing.T) {
	cli := NewCLI()
	if _, err := cli.Slice(context.Background(), Request{ModelPath: "/models/benchy.stl"}, nil); err == nil {
		t.Fatal("expected error when output directory is empty")
	}
}

func TestCLISliceBuildsCommand(t *testing.T) {
	var capturedArgs []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		capturedArgs = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "SLICER_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cli := NewCLI(WithBinary("/opt/orcaslicer"), WithDataDir("/opt/orca-data"))
	req := Request{
		ModelPath:   "/models/benchy.stl",
		WorkDir:     tempDir,
		OutputDir:   outputDir,
		ProfileName: "Draft",
		Settings:    map[string]any{"layer_height": 0.2},
		Export3MF:   true,
	}
	if _, err := cli.Slice(context.Background(), req, nil); err != nil {
		t.Fatalf("Slice returned error: %v", err)
	}

	expectPair(t, capturedArgs, "--datadir", "/opt/orca-data")
	expectPair(t, capturedArgs, "--outputdir", outputDir)
	expectPair(t, capturedArgs, "--slice", "0")
	expectPair(t, capturedArgs, "--export-3mf", filepath.Join(outputDir, "project.3mf"))

	idx := findArg(capturedArgs, "--load-settings")
	if idx == -1 || idx+1 >= len(capturedArgs) {
		t.Fatalf("expected --load-settings flag, got %v", capturedArgs)
	}
	if _, err := os.Stat(capturedArgs[idx+1]); err != nil {
		t.Fatalf("settings file missing: %v", err)
	}

	if capturedArgs[len(capturedArgs)-1] != "/models/benchy.stl" {
		t.Fatalf("expected model path last, got %v", capturedArgs)
	}
}

func TestCLISliceReportsProgressAndFindsGCode(t *testing.T) {
	setHelperCommand(t, "success")

	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Simulated slicer output file named after the input model.
	if err := os.WriteFile(filepath.Join(outputDir, "benchy.gcode"), []byte("G1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cli := NewCLI()
	var updates []ProgressUpdate
	result, err := cli.Slice(context.Background(), Request{
		ModelPath: "/models/benchy.stl",
		WorkDir:   tempDir,
		OutputDir: outputDir,
	}, func(update ProgressUpdate) {
		updates = append(updates, update)
	})
	if err != nil {
		t.Fatalf("Slice returned error: %v", err)
	}
	if result.GCodePath != filepath.Join(outputDir, "benchy.gcode") {
		t.Fatalf("gcode path = %q", result.GCodePath)
	}
	if len(updates) == 0 {
		t.Fatal("expected progress updates from slicing lines")
	}
	if updates[0].Stage != "slicing" {
		t.Fatalf("stage = %q, want slicing", updates[0].Stage)
	}
}

func TestCLISliceFailureIncludesOutputTail(t *testing.T) {
	setHelperCommand(t, "failure")

	tempDir := t.TempDir()
	cli := NewCLI()
	_, err := cli.Slice(context.Background(), Request{
		ModelPath: "/models/benchy.stl",
		WorkDir:   tempDir,
		OutputDir: tempDir,
	}, nil)
	if err == nil {
		t.Fatal("expected slice failure error")
	}
	if !strings.Contains(err.Error(), "objects could not fit on the bed") {
		t.Fatalf("error missing diagnostic output: %v", err)
	}
}

func TestCLIAvailable(t *testing.T) {
	missing := NewCLI(WithBinary(filepath.Join(t.TempDir(), "nope")))
	if missing.Available() {
		t.Fatal("missing binary reported available")
	}

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedSlicer())
	present := NewCLI(WithBinary(cfg.Slicer.Binary))
	if !present.Available() {
		t.Fatal("existing binary reported unavailable")
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("SLICER_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("SLICER_HELPER_MODE") {
	case "success":
		fmt.Println("Slicing process 10%")
		fmt.Println("Generating G-code 80%")
		fmt.Println("Slicing result exported")
		os.Exit(0)
	case "failure":
		fmt.Println("An object has empty slices")
		fmt.Fprintln(os.Stderr, "error: some objects could not fit on the bed")
		os.Exit(255)
	default:
		os.Exit(0)
	}
}

func expectPair(t *testing.T, args []string, flag, value string) {
	t.Helper()
	idx := findArg(args, flag)
	if idx == -1 {
		t.Fatalf("expected flag %s, got %v", flag, args)
	}
	if idx+1 >= len(args) || args[idx+1] != value {
		t.Fatalf("expected %s %s, got %v", flag, value, args)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
