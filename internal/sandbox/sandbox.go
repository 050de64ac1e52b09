// Package sandbox confines the file and script tools the agent can call.
package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrToolFailure wraps every failure reported by this package.
	ErrToolFailure = errors.New("tool failure")
	// ErrOutsideRoot is returned for paths that escape the sandbox root.
	ErrOutsideRoot = errors.New("path outside sandbox")
	// ErrNotAllowed is returned for scripts that are not in the allow-list directory.
	ErrNotAllowed = errors.New("script not allowed")
	// ErrTimeout is returned when a script exceeds its time budget.
	ErrTimeout = errors.New("script timed out")
)

// TruncationMarker is appended to output cut at the size cap.
const TruncationMarker = "\n...[output truncated]"

func failure(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrToolFailure, kind, fmt.Sprintf(format, args...))
}

// Workspace is a directory the agent may read and write.
type Workspace struct {
	root     string
	maxBytes int
}

// NewWorkspace creates root if needed. Reads larger than maxBytes are
// truncated; zero means no cap.
func NewWorkspace(root string, maxBytes int) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Workspace{root: abs, maxBytes: maxBytes}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Resolve maps a workspace-relative path to an absolute one.
func (w *Workspace) Resolve(rel string) (string, error) {
	return resolveWithin(w.root, rel)
}

// ReadFile returns the file's content, capped at the workspace read limit.
func (w *Workspace) ReadFile(rel string) (string, error) {
	path, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolFailure, err)
	}
	return truncate(data, w.maxBytes), nil
}

// WriteFile creates or replaces a file, creating parent directories.
func (w *Workspace) WriteFile(rel, content string) (int, error) {
	path, err := w.Resolve(rel)
	if err != nil {
		return 0, err
	}
	if path == w.root {
		return 0, failure(ErrOutsideRoot, "cannot write the workspace root")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrToolFailure, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrToolFailure, err)
	}
	return len(content), nil
}

// ListFiles lists a directory. Subdirectories carry a trailing slash.
func (w *Workspace) ListFiles(rel string) ([]string, error) {
	path, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrToolFailure, err)
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
	return names, nil
}

func resolveWithin(root, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	var path string
	if filepath.IsAbs(rel) {
		path = filepath.Clean(rel)
	} else {
		path = filepath.Join(root, rel)
	}
	if !within(root, path) {
		return "", failure(ErrOutsideRoot, "%s", rel)
	}
	// Symlinks must not lead out either, including through an ancestor of a
	// file that does not exist yet.
	real, err := evalExisting(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolFailure, err)
	}
	if !within(root, real) {
		return "", failure(ErrOutsideRoot, "%s", rel)
	}
	return path, nil
}

// evalExisting resolves symlinks in the deepest existing ancestor of path
// and re-attaches the components that do not exist yet.
func evalExisting(path string) (string, error) {
	var missing []string
	cur := path
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				real = filepath.Join(real, missing[i])
			}
			return real, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}

func within(root, path string) bool {
	r, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))
}

func truncate(data []byte, max int) string {
	if max <= 0 || len(data) <= max {
		return string(data)
	}
	return string(data[:max]) + TruncationMarker
}

// cappedBuffer keeps the first max bytes and discards the rest while still
// reporting full writes so the producer never sees a short write.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.max <= 0 {
		return c.buf.Write(p)
	}
	room := c.max - c.buf.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + TruncationMarker
	}
	return c.buf.String()
}
