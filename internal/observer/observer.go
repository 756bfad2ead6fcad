// Package observer implements the reconciliation loop, the thread-safe
// registry of observed tasks, and the query surface described in
// spec.md §4.7.
package observer

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/detector"
	"taskobs.dev/observer/internal/monitor"
	"taskobs.dev/observer/internal/observed"
	"taskobs.dev/observer/internal/pathspec"
	"taskobs.dev/observer/internal/resource"
	"taskobs.dev/observer/internal/taskconfig"
)

// DefaultPollingInterval is the reconciliation cadence spec.md §4.7
// specifies as the default.
const DefaultPollingInterval = time.Second

// Recorder receives reconciliation/query metrics. Implemented by
// internal/metrics; a nil Recorder (the zero value's noopRecorder) is
// used when metrics are disabled.
type Recorder interface {
	ReconcilePass(duration time.Duration)
	RegistrySizes(active, finished int)
	Promotion()
	Transition()
	GC()
	SamplerError()
	Query(name string, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ReconcilePass(time.Duration) {}
func (noopRecorder) RegistrySizes(int, int)      {}
func (noopRecorder) Promotion()                  {}
func (noopRecorder) Transition()                 {}
func (noopRecorder) GC()                         {}
func (noopRecorder) SamplerError()               {}
func (noopRecorder) Query(string, time.Duration) {}

// TaskObserver owns the two task registries, the reconciliation loop,
// and the query surface. Every public method acquires mu exactly once;
// internal helpers assume it is already held (spec.md §9's resolution
// of the reentrant-lock Open Question).
type TaskObserver struct {
	root            pathspec.PathSpec
	detector        *detector.TaskDetector
	replayer        *checkpoint.Replayer
	resourceFactory resource.Factory
	pollingInterval time.Duration
	log             logrus.FieldLogger
	metrics         Recorder

	mu       sync.Mutex
	active   map[string]*observed.ActiveTask
	finished map[string]*observed.FinishedTask

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a TaskObserver at construction time.
type Option func(*TaskObserver)

func WithPollingInterval(d time.Duration) Option {
	return func(o *TaskObserver) {
		if d > 0 {
			o.pollingInterval = d
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *TaskObserver) { o.log = log }
}

func WithRecorder(m Recorder) Option {
	return func(o *TaskObserver) { o.metrics = m }
}

// New constructs a TaskObserver rooted at root, using factory to build
// each active task's ResourceMonitor. A nil factory is a contract
// violation and fails fast, per spec.md §4.7/§7.
func New(root string, factory resource.Factory, opts ...Option) (*TaskObserver, error) {
	if factory == nil {
		return nil, ErrNilResourceFactory
	}

	spec := pathspec.New(root)
	o := &TaskObserver{
		root:            spec,
		resourceFactory: factory,
		pollingInterval: DefaultPollingInterval,
		log:             logrus.StandardLogger(),
		metrics:         noopRecorder{},
		active:          make(map[string]*observed.ActiveTask),
		finished:        make(map[string]*observed.FinishedTask),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.detector = detector.New(spec, o.log)
	o.replayer = checkpoint.NewReplayer(o.log)

	// Probe the factory once with an inert, already-dead monitor so an
	// incompatible factory fails at construction, not mid-reconciliation.
	probe, err := factory("", func(string) (int, bool) { return 0, false }, func() []string { return nil })
	if err != nil {
		return nil, fmt.Errorf("observer: resource factory probe failed: %w", err)
	}
	probe.Kill()

	return o, nil
}

// Run executes the reconciliation loop until ctx is cancelled or Stop
// is called. The in-progress pass always runs to completion before
// either signal is honored (spec.md §5's cancellation contract).
func (o *TaskObserver) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.pollingInterval)
	defer ticker.Stop()

	for {
		o.reconcileOnce()

		select {
		case <-ctx.Done():
			o.shutdownSamplers()
			return ctx.Err()
		case <-o.stopCh:
			o.shutdownSamplers()
			return nil
		case <-ticker.C:
		}
	}
}

// Stop signals Run to exit after its current pass. Per spec.md §5,
// this alone does not kill extant active handles' samplers; Run's
// shutdown path does that explicitly so a caller doesn't have to drain
// the registry by hand.
func (o *TaskObserver) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *TaskObserver) shutdownSamplers() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, h := range o.active {
		h.Resource().Kill()
	}
}

// TaskCount and TaskIDCount are diagnostic queries preserved from the
// original observer (SPEC_FULL.md's supplemented-features section).
func (o *TaskObserver) TaskCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active) + len(o.finished)
}

func (o *TaskObserver) TaskIDCount() (activeCount, finishedCount int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active), len(o.finished)
}

// handleLocked returns the task's handle from whichever registry holds
// it, or nil. Caller must hold mu.
func (o *TaskObserver) handleLocked(taskID string) observed.Task {
	if h, ok := o.active[taskID]; ok {
		return h
	}
	if h, ok := o.finished[taskID]; ok {
		return h
	}
	return nil
}

// taskConfigPath resolves the on-disk config file path for a task in
// a given subtree, without touching the filesystem.
func (o *TaskObserver) taskConfigPath(taskID, state string) (string, error) {
	return o.root.Given(pathspec.WithTaskID(taskID), pathspec.WithState(state)).GetPath(pathspec.TaskPath)
}

// mtimeOf stats the task's config file for ObservedTask.mtime, per
// spec.md §3 invariant 3: the mtime of the state directory at handle
// creation, never refreshed. Falls back to now() on a stat failure so
// a transient I/O error never blocks reconciliation.
func (o *TaskObserver) mtimeOf(taskID, state string) time.Time {
	path, err := o.taskConfigPath(taskID, state)
	if err != nil {
		return time.Now()
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Now()
	}
	return info.ModTime()
}

// configLoaderFor returns a loader closure bound to one task/subtree,
// used by observed.ActiveTask/FinishedTask's lazy Config().
func (o *TaskObserver) configLoaderFor(taskID, state string) func(taskconfig.Context) (*taskconfig.TaskConfig, bool) {
	return func(ctx taskconfig.Context) (*taskconfig.TaskConfig, bool) {
		path, err := o.taskConfigPath(taskID, state)
		if err != nil {
			return nil, false
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, false
		}
		cfg, err := taskconfig.Load(raw, ctx)
		if err != nil {
			o.log.WithError(err).WithField("task_id", taskID).Warn("observer: failed to parse task config")
			return nil, false
		}
		return cfg, true
	}
}
