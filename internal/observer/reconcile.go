package observer

import (
	"fmt"
	"time"

	hashset "github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/go-multierror"

	"taskobs.dev/observer/internal/checkpoint"
	"taskobs.dev/observer/internal/detector"
	"taskobs.dev/observer/internal/monitor"
	"taskobs.dev/observer/internal/observed"
	"taskobs.dev/observer/internal/pathspec"
)

// reconcileOnce runs exactly one pass of the algorithm in spec.md §4.7:
// snapshot disk outside the lock, then promote/transition/insert/GC
// under a single lock acquisition, in the order the ordering rationale
// requires (promotions before active→finished removals). Per-task
// failures within a pass are collected, never aborting the pass itself
// (spec.md §7's propagation policy); the merged error is only logged,
// never returned to a blocking caller.
func (o *TaskObserver) reconcileOnce() {
	start := time.Now()

	da := o.detector.GetTaskIDs(detector.Active)
	df := o.detector.GetTaskIDs(detector.Finished)
	daSet := hashset.From(da)
	dfSet := hashset.From(df)

	var errs *multierror.Error
	o.mu.Lock()
	errs = multierror.Append(errs, o.promoteLocked(da))
	errs = multierror.Append(errs, o.activeToFinishedLocked(dfSet))
	errs = multierror.Append(errs, o.newFinishedLocked(df))
	errs = multierror.Append(errs, o.gcLocked(daSet, dfSet))
	activeCount, finishedCount := len(o.active), len(o.finished)
	o.mu.Unlock()

	if err := errs.ErrorOrNil(); err != nil {
		o.log.WithError(err).Warn("observer: errors during reconciliation pass")
	}

	o.metrics.ReconcilePass(time.Since(start))
	o.metrics.RegistrySizes(activeCount, finishedCount)
}

// promoteLocked handles step 3: build a monitor+sampler for each newly
// discovered active task_id, or skip (retry next pass) if the runner
// hasn't written a header yet.
func (o *TaskObserver) promoteLocked(da []string) error {
	var errs *multierror.Error
	for _, t := range da {
		if _, exists := o.active[t]; exists {
			continue
		}
		if _, exists := o.finished[t]; exists {
			o.log.WithError(ErrAlreadyFinished).WithField("task_id", t).Error("observer: anomaly during promotion")
			errs = multierror.Append(errs, fmt.Errorf("task %s: %w", t, ErrAlreadyFinished))
			continue
		}

		ckptPath, err := o.root.Given(pathspec.WithTaskID(t)).GetPath(pathspec.RunnerCheckpoint)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("task %s: %w", t, err))
			continue
		}
		mon := monitor.New(ckptPath, o.replayer)
		state := mon.GetState()
		if state == nil || state.Header == nil {
			o.log.WithField("task_id", t).Debug("observer: runner not initialized yet, retrying next pass")
			continue
		}

		lookup, list := processLookups(mon)
		resMon, err := o.resourceFactory(state.Header.Sandbox, lookup, list)
		if err != nil {
			o.log.WithError(err).WithField("task_id", t).Error("observer: failed to build resource monitor")
			o.metrics.SamplerError()
			errs = multierror.Append(errs, fmt.Errorf("task %s: %w", t, err))
			continue
		}
		if err := resMon.Start(); err != nil {
			o.log.WithError(err).WithField("task_id", t).Error("observer: failed to start resource monitor")
			o.metrics.SamplerError()
			errs = multierror.Append(errs, fmt.Errorf("task %s: %w", t, err))
			continue
		}

		handle := observed.NewActiveTask(t, o.mtimeOf(t, "active"), mon, resMon, o.configLoaderFor(t, "active"))
		o.active[t] = handle
		o.metrics.Promotion()
	}
	return errs.ErrorOrNil()
}

// activeToFinishedLocked handles step 4: any task seen in both the
// active registry and the on-disk finished set transitions now, before
// newFinishedLocked runs, so a task visible in both subtrees during the
// runner's atomic rename is treated as already-finished.
func (o *TaskObserver) activeToFinishedLocked(df *hashset.Set[string]) error {
	for t, handle := range o.active {
		if !df.Contains(t) {
			continue
		}
		handle.Resource().Kill()
		delete(o.active, t)
		o.finished[t] = o.newFinishedHandle(t)
		o.metrics.Transition()
	}
	return nil
}

// newFinishedLocked handles step 5: task_ids present only in the
// finished subtree, never seen as active.
func (o *TaskObserver) newFinishedLocked(df []string) error {
	var errs *multierror.Error
	for _, t := range df {
		if _, exists := o.active[t]; exists {
			o.log.WithError(ErrAlreadyActive).WithField("task_id", t).Error("observer: anomaly during finished discovery")
			errs = multierror.Append(errs, fmt.Errorf("task %s: %w", t, ErrAlreadyActive))
			continue
		}
		if _, exists := o.finished[t]; exists {
			continue
		}
		o.finished[t] = o.newFinishedHandle(t)
	}
	return errs.ErrorOrNil()
}

func (o *TaskObserver) newFinishedHandle(t string) *observed.FinishedTask {
	ckptPath, _ := o.root.Given(pathspec.WithTaskID(t)).GetPath(pathspec.RunnerCheckpoint)
	replay := func() *checkpoint.RunnerState {
		state, err := o.replayer.FromFile(ckptPath)
		if err != nil || state == nil {
			return checkpoint.NewRunnerState()
		}
		return state
	}
	return observed.NewFinishedTask(t, o.mtimeOf(t, "finished"), replay, o.configLoaderFor(t, "finished"))
}

// gcLocked handles step 6: drop any handle whose task_id has vanished
// from both on-disk subtrees.
func (o *TaskObserver) gcLocked(da, df *hashset.Set[string]) error {
	for t, handle := range o.active {
		if da.Contains(t) || df.Contains(t) {
			continue
		}
		handle.Resource().Kill()
		delete(o.active, t)
		o.metrics.GC()
	}
	for t := range o.finished {
		if da.Contains(t) || df.Contains(t) {
			continue
		}
		delete(o.finished, t)
		o.metrics.GC()
	}
	return nil
}

// processLookups builds the PIDLookup/ProcessLister closures a
// resource.Monitor uses to find what to sample, bound to one task's
// TaskMonitor.
func processLookups(mon *monitor.TaskMonitor) (pidLookup func(string) (int, bool), list func() []string) {
	pidLookup = func(process string) (int, bool) {
		state := mon.GetState()
		run, ok := state.ResolveRun(process, nil)
		if !ok {
			return 0, false
		}
		pr := state.Processes[process][run]
		if pr.PID == 0 {
			return 0, false
		}
		return pr.PID, true
	}
	list = func() []string {
		state := mon.GetState()
		names := make([]string, 0, len(state.Processes))
		for name := range state.Processes {
			names = append(names, name)
		}
		return names
	}
	return pidLookup, list
}
