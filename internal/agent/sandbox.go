package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fleetd/internal/common/fsutil"
)

const (
	defaultShellTimeout = 30 * time.Second

	// Tool output beyond this is truncated before it re-enters the prompt.
	maxResultBytes = 16 << 10

	// Files larger than this are skipped by search_files.
	maxSearchFileBytes = 1 << 20

	maxSearchMatches = 100
)

// Sandbox executes tool actions. Callers pass absolute paths that have
// already been resolved against the confined root.
type Sandbox interface {
	Root() string
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) (string, error)
	EditFile(ctx context.Context, path, oldText, newText string) (string, error)
	RunShell(ctx context.Context, dir, command string) (string, error)
	SearchFiles(ctx context.Context, dir, pattern string) (string, error)
	ListDirectory(ctx context.Context, dir string) (string, error)
}

// LocalSandbox runs tools directly on the local filesystem under a single
// root directory.
type LocalSandbox struct {
	root         string
	shellTimeout time.Duration
}

// NewLocalSandbox creates the root directory if needed and returns a sandbox
// over it. A shellTimeout of zero selects the 30s default.
func NewLocalSandbox(root string, shellTimeout time.Duration) (*LocalSandbox, error) {
	root, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	if shellTimeout <= 0 {
		shellTimeout = defaultShellTimeout
	}
	return &LocalSandbox{root: abs, shellTimeout: shellTimeout}, nil
}

// Root returns the absolute confinement root.
func (s *LocalSandbox) Root() string { return s.root }

func (s *LocalSandbox) rel(path string) string {
	if r, err := filepath.Rel(s.root, path); err == nil {
		return r
	}
	return path
}

func (s *LocalSandbox) ReadFile(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ErrTool(fmt.Sprintf("read_file: %v", err), false)
	}
	return clip(string(data)), nil
}

func (s *LocalSandbox) WriteFile(_ context.Context, path, content string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", ErrTool(fmt.Sprintf("write_file: %v", err), false)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", ErrTool(fmt.Sprintf("write_file: %v", err), false)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), s.rel(path)), nil
}

func (s *LocalSandbox) EditFile(_ context.Context, path, oldText, newText string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ErrTool(fmt.Sprintf("edit_file: %v", err), false)
	}
	text := string(data)
	if !strings.Contains(text, oldText) {
		return "", ErrTool(fmt.Sprintf("edit_file: old_text not found in %s", s.rel(path)), false)
	}
	text = strings.Replace(text, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", ErrTool(fmt.Sprintf("edit_file: %v", err), false)
	}
	return fmt.Sprintf("replaced 1 occurrence in %s", s.rel(path)), nil
}

func (s *LocalSandbox) RunShell(ctx context.Context, dir, command string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, s.shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if tctx.Err() == context.DeadlineExceeded {
			return "", ErrTool(fmt.Sprintf("run_shell: command timed out after %s", s.shellTimeout), false)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			// the shell itself cannot be launched; no run can make progress
			return "", ErrTool(fmt.Sprintf("run_shell: %v", err), true)
		}
		return "", ErrTool(fmt.Sprintf("run_shell: %v\n%s", err, clip(string(out))), false)
	}
	if len(out) == 0 {
		return "(no output)", nil
	}
	return clip(string(out)), nil
}

func (s *LocalSandbox) SearchFiles(ctx context.Context, dir, pattern string) (string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if info, ierr := d.Info(); ierr != nil || info.Size() > maxSearchFileBytes {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, pattern) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", s.rel(path), i+1, strings.TrimSpace(line)))
				if len(matches) >= maxSearchMatches {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", ErrTool(fmt.Sprintf("search_files: %v", err), false)
	}
	if len(matches) == 0 {
		return "no matches", nil
	}
	return clip(strings.Join(matches, "\n")), nil
}

func (s *LocalSandbox) ListDirectory(_ context.Context, dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ErrTool(fmt.Sprintf("list_directory: %v", err), false)
	}
	if len(entries) == 0 {
		return "(empty)", nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

// containedPath resolves p against base and verifies the result stays under
// root. Relative paths join onto base; an empty p selects base itself.
func containedPath(root, base, p string) (string, error) {
	resolved := p
	if resolved == "" {
		resolved = base
	} else if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(base, resolved)
	}
	resolved = filepath.Clean(resolved)
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathViolation(p)
	}
	return resolved, nil
}

// clip bounds tool output before it is recorded and fed back to the model.
func clip(s string) string {
	if len(s) <= maxResultBytes {
		return s
	}
	return s[:maxResultBytes] + "\n... (truncated)"
}
