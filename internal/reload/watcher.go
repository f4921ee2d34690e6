package reload

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/timzifer/orbit/config"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher keeps track of configuration source files and detects modifications.
type Watcher struct {
	mu    sync.Mutex
	paths []string
	files map[string]fileState
}

// NewWatcher builds a watcher tracking the source of cfg and any extra paths.
func NewWatcher(cfg *config.Config, extra ...string) (*Watcher, error) {
	watcher := &Watcher{}
	if err := watcher.Update(cfg, extra...); err != nil {
		return nil, err
	}
	return watcher, nil
}

// Update rebuilds the tracked file list from the provided configuration.
func (w *Watcher) Update(cfg *config.Config, extra ...string) error {
	if w == nil {
		return nil
	}
	paths := make([]string, 0, len(extra)+1)
	if cfg != nil {
		paths = append(paths, cfg.Source)
	}
	for _, path := range extra {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		paths = append(paths, path)
	}
	paths = uniquePaths(paths)

	w.mu.Lock()
	w.paths = paths
	w.mu.Unlock()
	w.Refresh()
	return nil
}

// Refresh snapshots the tracked files so the next Check starts from their
// current state.
func (w *Watcher) Refresh() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	states := make(map[string]fileState, len(w.paths))
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		states[path] = fileState{modTime: info.ModTime(), size: info.Size()}
	}
	w.files = states
}

// Check reports the files that changed since the last snapshot.
func (w *Watcher) Check() ([]string, error) {
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, state := range w.files {
		info, err := os.Stat(path)
		if err != nil {
			changed = append(changed, path)
			continue
		}
		if info.IsDir() {
			continue
		}
		if info.ModTime().After(state.modTime) || info.Size() != state.size {
			changed = append(changed, path)
		}
	}
	for _, path := range w.paths {
		if _, tracked := w.files[path]; tracked {
			continue
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// Watch polls every interval until ctx is done and calls onChange with the
// changed files. The snapshot is refreshed after every reported change.
func (w *Watcher) Watch(ctx context.Context, interval time.Duration, onChange func(changed []string)) {
	if w == nil || onChange == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := w.Check()
			if err != nil || len(changed) == 0 {
				continue
			}
			w.Refresh()
			onChange(changed)
		}
	}
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
