// Package resource samples live process-tree and sandbox-disk resource
// consumption for active tasks.
package resource

import "time"

// Sample is the aggregate resource snapshot across a task's live
// process tree, plus the sandbox's disk usage (spec.md §3).
type Sample struct {
	CPU            float64 // percent of one core (gopsutil CPUPercent), summed across the tree
	RAMBytes       uint64
	DiskUsageBytes uint64
}

// ProcessSample is the per-process breakdown returned by SampleByProcess.
type ProcessSample struct {
	CPU      float64
	RAMBytes uint64
}

// Monitor is the contract an injectable resource sampler must satisfy
// (spec.md §4.5, §6). Start spawns background sampling; Kill stops it
// and releases all resources; calls after Kill return the last known
// value rather than erroring.
type Monitor interface {
	Start() error
	Kill()
	Sample() (time.Time, Sample)
	SampleByProcess(process string) (ProcessSample, bool)
}

// PIDLookup resolves a process name's current PID from the task's
// RunnerState, returning ok=false if the process has no live run yet.
type PIDLookup func(process string) (pid int, ok bool)

// ProcessLister enumerates the task's known process names, so a Monitor
// can sample every process a task has ever forked.
type ProcessLister func() []string

// Factory builds a Monitor bound to one active task's sandbox and PID
// lookups. Rejecting an incompatible factory at TaskObserver
// construction time is a startup-time fault (spec.md §4.7).
type Factory func(sandboxPath string, lookup PIDLookup, list ProcessLister) (Monitor, error)
