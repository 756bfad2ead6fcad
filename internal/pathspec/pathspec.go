// Package pathspec maps task identity and component keys to filesystem
// paths under a checkpoint root, without touching the filesystem itself.
package pathspec

import (
	"errors"
	"path/filepath"
	"strconv"
)

// Kind selects which templated path to build.
type Kind int

const (
	// TaskPath is the on-disk task config file: <root>/tasks/<state>/<task_id>.
	TaskPath Kind = iota
	// RunnerCheckpoint is the append-only runner event log: <root>/checkpoints/<task_id>/runner.
	RunnerCheckpoint
	// ProcessLogDir is a process run's log directory: <root>/logs/<task_id>/<process>/<run>.
	ProcessLogDir
	// LogFile is one stream file (stdout/stderr) under ProcessLogDir.
	LogFile
)

// ErrMissingKey signals a programming fault: the caller asked for a Kind
// that needs a field PathSpec was never given.
var ErrMissingKey = errors.New("pathspec: missing required key")

// PathSpec is an immutable path builder. The zero value is a valid,
// empty spec; Given returns a new spec with additional fields bound.
type PathSpec struct {
	root    string
	taskID  string
	state   string // "active" | "finished"
	process string
	run     *int
	stream  string // "stdout" | "stderr"
}

// New returns a PathSpec rooted at root. root must be non-empty.
func New(root string) PathSpec {
	return PathSpec{root: root}
}

// Given returns a copy of p with the supplied fields overridden. Each
// option sets only its own field (to the value given, even an empty
// one) and leaves the others as bound, so partial updates compose:
// p.Given(WithTaskID("t1")).Given(WithState("active")).
func (p PathSpec) Given(opts ...Option) PathSpec {
	next := p
	for _, opt := range opts {
		opt(&next)
	}
	return next
}

// Option mutates a PathSpec as part of Given.
type Option func(*PathSpec)

func WithTaskID(id string) Option   { return func(p *PathSpec) { p.taskID = id } }
func WithState(state string) Option { return func(p *PathSpec) { p.state = state } }
func WithProcess(name string) Option { return func(p *PathSpec) { p.process = name } }
func WithRun(run int) Option        { return func(p *PathSpec) { p.run = &run } }
func WithStream(stream string) Option { return func(p *PathSpec) { p.stream = stream } }

// GetPath resolves kind to a filesystem path. Returns ErrMissingKey if a
// field required by kind was never bound via Given.
func (p PathSpec) GetPath(kind Kind) (string, error) {
	if p.root == "" {
		return "", ErrMissingKey
	}
	switch kind {
	case TaskPath:
		if p.taskID == "" || p.state == "" {
			return "", ErrMissingKey
		}
		return filepath.Join(p.root, "tasks", p.state, p.taskID), nil
	case RunnerCheckpoint:
		if p.taskID == "" {
			return "", ErrMissingKey
		}
		return filepath.Join(p.root, "checkpoints", p.taskID, "runner"), nil
	case ProcessLogDir:
		if p.taskID == "" || p.process == "" || p.run == nil {
			return "", ErrMissingKey
		}
		return filepath.Join(p.root, "logs", p.taskID, p.process, strconv.Itoa(*p.run)), nil
	case LogFile:
		if p.taskID == "" || p.process == "" || p.run == nil || p.stream == "" {
			return "", ErrMissingKey
		}
		return filepath.Join(p.root, "logs", p.taskID, p.process, strconv.Itoa(*p.run), p.stream), nil
	default:
		return "", ErrMissingKey
	}
}

// ActiveRoot and FinishedRoot are the two top-level task subtrees that
// TaskDetector enumerates.
func (p PathSpec) ActiveRoot() string   { return filepath.Join(p.root, "tasks", "active") }
func (p PathSpec) FinishedRoot() string { return filepath.Join(p.root, "tasks", "finished") }
