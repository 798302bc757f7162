package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/assistant-guard/internal/core/events"
)

type systemInfo struct {
	started time.Time
}

// NewSystemInfo reports runtime details of this process.
func NewSystemInfo(started time.Time) Executor {
	return &systemInfo{started: started}
}

func (s *systemInfo) Execute(context.Context, Invocation) (Result, error) {
	host, _ := os.Hostname()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return Success("", map[string]interface{}{
		"hostname":       host,
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"go_version":     runtime.Version(),
		"cpus":           runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_bytes":     mem.HeapAlloc,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().UTC(),
	}), nil
}

// FileManager performs file actions restricted to a set of directories.
type FileManager struct {
	roots []string
}

func NewFileManager(safeDirs []string) *FileManager {
	roots := make([]string, 0, len(safeDirs))
	for _, d := range safeDirs {
		if d == "" {
			continue
		}
		root := filepath.Clean(d)
		if real, err := filepath.EvalSymlinks(root); err == nil {
			root = real
		}
		roots = append(roots, root)
	}
	return &FileManager{roots: roots}
}

// resolve follows symlinks before the containment check, so a link inside a
// root cannot point the action outside of it.
func (m *FileManager) resolve(p string) (string, bool) {
	if p == "" || !filepath.IsAbs(p) {
		return "", false
	}
	real, err := realPath(filepath.Clean(p))
	if err != nil {
		return "", false
	}
	for _, root := range m.roots {
		rel, err := filepath.Rel(root, real)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return real, true
		}
	}
	return "", false
}

// realPath resolves symlinks in the deepest existing ancestor of p and
// re-attaches the components that do not exist yet. A dangling link fails.
func realPath(p string) (string, error) {
	existing, tail := p, ""
	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = filepath.Join(filepath.Base(existing), tail)
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, tail), nil
}

func (m *FileManager) Execute(_ context.Context, inv Invocation) (Result, error) {
	action := stringParam(inv.Parameters, "action")
	path := stringParam(inv.Parameters, "file_path")
	content := stringParam(inv.Parameters, "content")
	if action == "" || path == "" {
		return Failure("action and file_path are required"), nil
	}
	target, ok := m.resolve(path)
	if !ok {
		return Failure("file operations only allowed in safe directories"), nil
	}

	switch action {
	case "create":
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return Result{}, fmt.Errorf("create directory: %w", err)
		}
		if err := os.WriteFile(target, []byte(content), 0o640); err != nil {
			return Result{}, fmt.Errorf("write file: %w", err)
		}
		return Success("File created: "+target, nil), nil
	case "read":
		data, err := os.ReadFile(target)
		if errors.Is(err, fs.ErrNotExist) {
			return Failure("file not found"), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("read file: %w", err)
		}
		return Success("", map[string]interface{}{"file_path": target, "content": string(data)}), nil
	case "update":
		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			return Failure("file not found"), nil
		}
		if err := os.WriteFile(target, []byte(content), 0o640); err != nil {
			return Result{}, fmt.Errorf("write file: %w", err)
		}
		return Success("File updated: "+target, nil), nil
	case "delete":
		err := os.Remove(target)
		if errors.Is(err, fs.ErrNotExist) {
			return Failure("file not found"), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("remove file: %w", err)
		}
		return Success("File deleted: "+target, nil), nil
	default:
		return Failure("invalid action"), nil
	}
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type workflowTrigger struct {
	bus Publisher
}

// NewWorkflowTrigger announces workflow runs on the event bus.
func NewWorkflowTrigger(bus Publisher) Executor {
	return &workflowTrigger{bus: bus}
}

func (w *workflowTrigger) Execute(ctx context.Context, inv Invocation) (Result, error) {
	name := stringParam(inv.Parameters, "workflow_name")
	if name == "" {
		name = "default"
	}
	id := stringParam(inv.Parameters, "workflow_id")
	if id == "" {
		id = "wf_" + uuid.NewString()
	}
	params, _ := inv.Parameters["parameters"].(map[string]interface{})
	if params == nil {
		params = map[string]interface{}{}
	}

	if err := w.bus.Publish(ctx, events.NewWorkflowTriggeredEvent(id, name, inv.UserID, params)); err != nil {
		return Result{}, fmt.Errorf("publish workflow event: %w", err)
	}
	return Success(fmt.Sprintf("Workflow '%s' triggered successfully", name), map[string]interface{}{
		"workflow_id": id,
		"parameters":  params,
	}), nil
}
