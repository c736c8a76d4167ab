package slicer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

var commandContext = exec.CommandContext

// ErrBinaryNotFound indicates the configured slicer executable is missing.
var ErrBinaryNotFound = errors.New("slicer binary not found")

// ProgressUpdate captures slicing progress scraped from CLI output.
type ProgressUpdate struct {
	Percent float64
	Stage   string
	Message string
}

// Request describes one slicing invocation.
type Request struct {
	ModelPath   string
	WorkDir     string
	OutputDir   string
	ProfileName string
	Settings    map[string]any
	Export3MF   bool
}

// Result carries the artifact locations produced by a slice run.
type Result struct {
	GCodePath      string
	Project3MFPath string
	OutputTail     string
}

// Client defines slicing behaviour.
type Client interface {
	Slice(ctx context.Context, req Request, progress func(ProgressUpdate)) (*Result, error)
	Version(ctx context.Context) (string, error)
	Available() bool
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the slicer executable path.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithDataDir points the slicer at a preset directory containing machine/,
// process/, and filament/ subdirectories.
func WithDataDir(dir string) Option {
	return func(c *CLI) {
		c.dataDir = dir
	}
}

// CLI wraps the OrcaSlicer command-line executable.
type CLI struct {
	binary  string
	dataDir string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "orcaslicer"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Available reports whether the slicer executable exists on disk.
func (c *CLI) Available() bool {
	if c == nil || c.binary == "" {
		return false
	}
	if strings.ContainsRune(c.binary, os.PathSeparator) {
		_, err := os.Stat(c.binary)
		return err == nil
	}
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Version reports the slicer's version string.
func (c *CLI) Version(ctx context.Context) (string, error) {
	if !c.Available() {
		return "", ErrBinaryNotFound
	}
	cmd := commandContext(ctx, c.binary, "--help")
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		return "", fmt.Errorf("query slicer version: %w", err)
	}
	for _, line := range strings.Split(string(output), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "orcaslicer") || strings.Contains(lower, "version") {
			return trimmed, nil
		}
	}
	return "unknown", nil
}

// Slice launches the slicer and blocks until it exits. Output lines are
// scanned for progress and a bounded tail is retained for diagnostics. The
// slicer runs in its own process group so a context cancellation kills the
// whole tree, not just the launcher.
func (c *CLI) Slice(ctx context.Context, req Request, progress func(ProgressUpdate)) (*Result, error) {
	if req.ModelPath == "" {
		return nil, errors.New("model path required")
	}
	if req.OutputDir == "" {
		return nil, errors.New("output directory required")
	}

	result := &Result{}
	args := []string{}
	if c.dataDir != "" {
		args = append(args, "--datadir", c.dataDir)
	}
	args = append(args, "--outputdir", req.OutputDir)

	if len(req.Settings) > 0 {
		settingsPath, err := WriteSettingsFile(req.WorkDir, req.ProfileName, req.Settings)
		if err != nil {
			return nil, err
		}
		args = append(args, "--load-settings", settingsPath)
	}

	args = append(args, "--slice", "0")
	if req.Export3MF {
		result.Project3MFPath = filepath.Join(req.OutputDir, "project.3mf")
		args = append(args, "--export-3mf", result.Project3MFPath)
	}
	args = append(args, req.ModelPath)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Dir = req.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start slicer: %w", err)
	}

	tail := newTailBuffer(64)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.Append(line)
		if progress == nil {
			continue
		}
		if update, ok := ParseProgressLine(line); ok {
			progress(update)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return nil, fmt.Errorf("read slicer output: %w", err)
	}

	result.OutputTail = tail.String()
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("slicer aborted: %w", ctxErr)
		}
		return nil, fmt.Errorf("slicer failed: %w: %s", err, tail.Last(10))
	}

	gcodePath, err := findGCodeOutput(req.OutputDir)
	if err != nil {
		return nil, err
	}
	result.GCodePath = gcodePath
	return result, nil
}

// findGCodeOutput locates the generated gcode file. The slicer names it
// after the input model, so any *.gcode in the output directory counts.
func findGCodeOutput(outputDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, "*.gcode"))
	if err != nil {
		return "", fmt.Errorf("scan output directory: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}

// tailBuffer retains the last N lines of subprocess output.
type tailBuffer struct {
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Append(line string) {
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	return strings.Join(b.lines, "\n")
}

// Last joins up to n trailing non-empty lines.
func (b *tailBuffer) Last(n int) string {
	var kept []string
	for i := len(b.lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(b.lines[i]) != "" {
			kept = append([]string{b.lines[i]}, kept...)
		}
	}
	return strings.Join(kept, " | ")
}

var _ Client = (*CLI)(nil)
