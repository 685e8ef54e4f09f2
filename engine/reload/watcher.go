// Package reload watches kernel sources and the parameter file and reports edits to the
// control loop.
package reload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/program"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventKind is what changed on disk.
type EventKind int

const (
	// EventShaders reports edited .wgsl files.
	EventShaders EventKind = iota
	// EventParameters reports an edited parameter file.
	EventParameters
)

func (k EventKind) String() string {
	switch k {
	case EventShaders:
		return "shaders"
	case EventParameters:
		return "parameters"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one settled batch of changes of one kind.
type Event struct {
	Kind  EventKind
	Paths []string
}

type watcher struct {
	mu       *sync.Mutex
	fs       *fsnotify.Watcher
	events   chan Event
	debounce time.Duration

	shaderDir  string
	paramsPath string

	pending  map[EventKind]map[string]struct{}
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Watcher delivers settled file changes over a channel. Events are meant to be drained on
// the control thread between frames.
type Watcher interface {
	// Start begins watching. The watcher stops when ctx is cancelled or Close is called.
	//
	// Parameters:
	//   - ctx: the context bounding the watcher's lifetime
	//
	// Returns:
	//   - error: an error if a directory could not be watched
	Start(ctx context.Context) error

	// Events returns the channel settled changes are delivered on.
	Events() <-chan Event

	// Close stops watching and waits for the watcher goroutine to exit.
	Close() error
}

var _ Watcher = &watcher{}

// NewWatcher creates a watcher for the configured shader directory and parameter file.
//
// Parameters:
//   - options: variadic list of WatcherBuilderOption functions
//
// Returns:
//   - Watcher: the watcher, not yet started
//   - error: an error if the file watcher could not be created or nothing is configured
func NewWatcher(options ...WatcherBuilderOption) (Watcher, error) {
	w := &watcher{
		mu:       &sync.Mutex{},
		events:   make(chan Event, 8),
		debounce: 250 * time.Millisecond,
		pending:  make(map[EventKind]map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(w)
	}
	if w.shaderDir == "" && w.paramsPath == "" {
		return nil, errors.New("nothing to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fs = fsw
	return w, nil
}

func (w *watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("watcher already started")
	}

	// editors often replace files by rename, so directories are watched rather than files
	dirs := make(map[string]struct{})
	if w.shaderDir != "" {
		dirs[filepath.Clean(w.shaderDir)] = struct{}{}
	}
	if w.paramsPath != "" {
		dirs[filepath.Dir(filepath.Clean(w.paramsPath))] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.started = true

	common.Logger().Info("watching for edits",
		zap.String("shaders", w.shaderDir),
		zap.String("parameters", w.paramsPath),
	)
	go w.loop(ctx)
	return nil
}

func (w *watcher) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(0)
	<-timer.C

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if kind, ok := w.classify(event); ok {
				common.Logger().Debug("file change detected",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()),
				)
				w.mark(kind, filepath.Clean(event.Name))
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			common.Logger().Error("watcher error", zap.Error(err))

		case <-timer.C:
			for _, e := range w.flush() {
				select {
				case w.events <- e:
				case <-w.stop:
					return
				case <-ctx.Done():
					return
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// classify decides whether a filesystem event is relevant and what kind it is.
func (w *watcher) classify(event fsnotify.Event) (EventKind, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return 0, false
	}
	name := filepath.Clean(event.Name)
	if w.paramsPath != "" && name == filepath.Clean(w.paramsPath) {
		return EventParameters, true
	}
	if w.shaderDir != "" && filepath.Dir(name) == filepath.Clean(w.shaderDir) && strings.HasSuffix(name, ".wgsl") {
		return EventShaders, true
	}
	return 0, false
}

func (w *watcher) mark(kind EventKind, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[kind] == nil {
		w.pending[kind] = make(map[string]struct{})
	}
	w.pending[kind][path] = struct{}{}
}

// flush returns the pending changes, shaders first, and clears them.
func (w *watcher) flush() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Event
	for _, kind := range []EventKind{EventShaders, EventParameters} {
		paths := w.pending[kind]
		if len(paths) == 0 {
			continue
		}
		e := Event{Kind: kind}
		for p := range paths {
			e.Paths = append(e.Paths, p)
		}
		sort.Strings(e.Paths)
		out = append(out, e)
		delete(w.pending, kind)
	}
	return out
}

func (w *watcher) Events() <-chan Event {
	return w.events
}

func (w *watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	err := w.fs.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	return err
}

// Affected returns the programs that read any of the changed source files.
//
// Parameters:
//   - programs: the candidate programs
//   - changed: the changed file paths
//
// Returns:
//   - []program.Program: the programs to recompile, in input order
func Affected(programs []program.Program, changed []string) []program.Program {
	set := make(map[string]struct{}, len(changed))
	for _, c := range changed {
		set[filepath.Clean(c)] = struct{}{}
	}

	var out []program.Program
	for _, p := range programs {
		if p == nil {
			continue
		}
		for _, stage := range p.Kind().Stages() {
			if _, ok := set[filepath.Clean(p.SourcePath(stage))]; ok {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
