// Package detector enumerates task ids present on disk under a
// checkpoint root's active/finished subtrees.
package detector

import (
	"os"

	"github.com/sirupsen/logrus"

	"taskobs.dev/observer/internal/pathspec"
)

// State names the on-disk subtree to scan.
type State string

const (
	Active   State = "active"
	Finished State = "finished"
)

// TaskDetector lists task ids currently present in a subtree. It never
// returns an error to callers: a root that cannot be read yields an
// empty result, logged at Warn (a root that does not exist is not
// logged), matching the "transient I/O" taxonomy.
type TaskDetector struct {
	root pathspec.PathSpec
	log  logrus.FieldLogger
}

// New returns a TaskDetector rooted at the checkpoint root described by root.
func New(root pathspec.PathSpec, log logrus.FieldLogger) *TaskDetector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TaskDetector{root: root, log: log}
}

// GetTaskIDs lists task ids present in the given subtree. Every entry
// name is a candidate id, whether it is a file or a directory; entries
// that lack the runner checkpoint file a real task always has once the
// runner has started are skipped rather than treated as tasks — this
// tolerates a runner mid-way through creating a task.
func (d *TaskDetector) GetTaskIDs(state State) []string {
	var dir string
	switch state {
	case Active:
		dir = d.root.ActiveRoot()
	case Finished:
		dir = d.root.FinishedRoot()
	default:
		d.log.WithField("state", state).Warn("detector: unknown state")
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			d.log.WithError(err).WithField("dir", dir).Warn("detector: failed to read subtree")
		}
		return nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id := e.Name()
		checkpoint, perr := d.root.Given(pathspec.WithTaskID(id)).GetPath(pathspec.RunnerCheckpoint)
		if perr != nil {
			continue
		}
		if _, statErr := os.Stat(checkpoint); statErr != nil {
			// Directory exists but the runner hasn't written a checkpoint
			// yet: partially-written, skip until the next pass.
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
