package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"verity-health/outpost/pkg/rules"
)

// Applier applies a parsed bundle through the same verify-then-commit
// path used for control-plane updates. The rule distribution client
// satisfies this.
type Applier interface {
	ApplyLocal(ctx context.Context, update *rules.RuleUpdate) error
}

// Watcher watches a bundle file and applies it whenever IT drops a new
// one. Events are debounced so a file copied in chunks triggers a
// single apply.
type Watcher struct {
	path    string
	applier Applier
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the given bundle path. The file does
// not need to exist yet; the containing directory does.
func NewWatcher(path string, applier Applier) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: editors and copy tools
	// replace the file, which invalidates a direct watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch bundle directory: %w", err)
	}

	return &Watcher{
		path:     path,
		applier:  applier,
		watcher:  fsw,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default().With("component", "rules.bundle"),
	}, nil
}

// Run processes file events until the context is cancelled. An existing
// bundle at startup is applied immediately, so a node restarted while
// offline picks up the last dropped bundle.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if _, err := Load(w.path); err == nil {
		w.apply(ctx)
	}

	w.logger.Info("bundle watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}
			w.logger.Debug("bundle file event", "op", event.Op.String())
			w.scheduleApply(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("bundle watcher error", "error", err)
		}
	}
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if event.Op&fsnotify.Remove == fsnotify.Remove {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

func (w *Watcher) scheduleApply(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.apply(ctx)
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) apply(ctx context.Context) {
	update, err := Load(w.path)
	if err != nil {
		w.logger.Error("failed to load bundle", "path", w.path, "error", err)
		return
	}

	if err := w.applier.ApplyLocal(ctx, update); err != nil {
		// A corrupt bundle is rejected exactly like a corrupt
		// control-plane update; the prior rules keep serving.
		w.logger.Error("failed to apply bundle",
			"path", w.path,
			"version", update.Version,
			"error", err,
		)
		return
	}

	w.logger.Info("bundle applied",
		"path", w.path,
		"version", update.Version,
		"rule_count", len(update.Rules),
	)
}
