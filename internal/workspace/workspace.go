// Package workspace manages the transient work area. Every pipeline run gets
// its own namespace directory named after a unique run id, so concurrent
// uploads that share a filename never touch each other's files.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const runPrefix = "run-"

// ErrClosed is returned when allocating from a run that already ended.
var ErrClosed = errors.New("run already closed")

// Area is the root of the transient work area. It holds no durable state and
// may be wiped between restarts.
type Area struct {
	root      string
	newID     func() string
	removeAll func(string) error
	remove    func(string) error
}

// NewArea returns an area rooted at root. The directory is created on demand.
func NewArea(root string) *Area {
	return &Area{
		root:      root,
		newID:     func() string { return uuid.New().String() },
		removeAll: os.RemoveAll,
		remove:    os.Remove,
	}
}

func (a *Area) Root() string {
	return a.root
}

// Sweep deletes run namespaces left behind by an earlier process and returns
// how many it removed.
func (a *Area) Sweep() (int, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read work area: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runPrefix) {
			continue
		}
		if err := a.removeAll(filepath.Join(a.root, e.Name())); err != nil {
			return removed, fmt.Errorf("remove stale run %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Begin reserves a new run. Nothing touches the disk until the first
// Allocate.
func (a *Area) Begin() *Run {
	id := a.newID()
	return &Run{
		id:   id,
		dir:  filepath.Join(a.root, runPrefix+id),
		area: a,
	}
}

// Run is the set of transient paths owned by one pipeline run. Close releases
// all of them exactly once.
type Run struct {
	id   string
	dir  string
	area *Area

	mu      sync.Mutex
	paths   []string
	created bool
	closed  bool
}

func (r *Run) ID() string {
	return r.id
}

// Dir is the run's namespace directory. It exists only after Allocate.
func (r *Run) Dir() string {
	return r.dir
}

// Allocate reserves name inside the run namespace and returns its path. The
// caller creates the file; the run deletes it on Close.
func (r *Run) Allocate(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid transient file name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrClosed
	}
	path := filepath.Join(r.dir, name)
	for _, p := range r.paths {
		if p == path {
			return "", fmt.Errorf("transient file %q already allocated", name)
		}
	}
	if !r.created {
		if err := os.MkdirAll(r.dir, 0o755); err != nil {
			return "", fmt.Errorf("create run dir: %w", err)
		}
		r.created = true
	}
	r.paths = append(r.paths, path)
	return path, nil
}

// Paths returns the allocated paths in allocation order.
func (r *Run) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// Close deletes every allocated path and then the namespace itself, which
// also catches scratch files a stage created next to its input. Calling
// Close again is a no-op.
func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, p := range r.paths {
		if err := r.area.remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	if r.created {
		if err := r.area.removeAll(r.dir); err != nil {
			errs = append(errs, fmt.Errorf("remove run dir: %w", err))
		}
	}
	return errors.Join(errs...)
}
