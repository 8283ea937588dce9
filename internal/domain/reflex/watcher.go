// Task 4.3: Filesystem watcher feeding the reflex processor.
// Translates fsnotify events under a root directory into file:changed bus
// events keyed by path. The processor's debounce stage absorbs the bursts;
// the watcher itself publishes every raw event.
package reflex

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/synapselabs/synapse/internal/infra/eventbus"
)

// Watcher publishes filesystem changes onto the bus.
type Watcher struct {
	bus  *eventbus.Bus
	log  zerolog.Logger
	root string
	fsw  *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWatcher creates a watcher rooted at dir. Subdirectories present at
// start are watched recursively; directories created later are added as
// their create events arrive.
func NewWatcher(bus *eventbus.Bus, log zerolog.Logger, dir string) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("reflex: watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("reflex: watch root %q is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reflex: fsnotify: %w", err)
	}

	return &Watcher{
		bus:  bus,
		log:  log.With().Str("component", "watcher").Logger(),
		root: dir,
		fsw:  fsw,
	}, nil
}

// Start registers the directory tree and begins publishing events. It is
// non-blocking; the consumption loop runs until Close or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return w.fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reflex: register watch tree: %w", err)
	}

	go w.loop(ctx)
	return nil
}

// Close stops the watcher and waits for the consumption loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	done := w.done
	w.mu.Unlock()

	err := w.fsw.Close()
	<-done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event) {
	op := opName(evt.Op)
	if op == "" {
		return // chmod noise
	}

	// New directories join the watch set so nested changes keep flowing.
	if evt.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(evt.Name)) {
				_ = w.fsw.Add(evt.Name)
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, evt.Name)
	if err != nil {
		rel = evt.Name
	}
	if pubErr := w.bus.Publish(source, eventbus.KindFileChanged, eventbus.FileChangedPayload{
		Path: rel,
		Op:   op,
	}); pubErr != nil {
		w.log.Warn().Err(pubErr).Str("path", rel).Msg("change event rejected")
	}
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}

// skipDir filters trees that churn without carrying user work.
func skipDir(name string) bool {
	return name == ".git" || name == "node_modules" || strings.HasPrefix(name, ".cache")
}
