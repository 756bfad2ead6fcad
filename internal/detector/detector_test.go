package detector

import (
	"os"
	"path/filepath"
	"testing"

	"taskobs.dev/observer/internal/pathspec"
)

func seedTask(t *testing.T, root, state, id string, withCheckpoint bool) {
	t.Helper()
	taskDir := filepath.Join(root, "tasks", state)
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(taskDir, id), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if withCheckpoint {
		ckptDir := filepath.Join(root, "checkpoints", id)
		if err := os.MkdirAll(ckptDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(ckptDir, "runner"), []byte{}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGetTaskIDsSkipsPartialWrites(t *testing.T) {
	root := t.TempDir()
	seedTask(t, root, "active", "complete", true)
	seedTask(t, root, "active", "partial", false)

	d := New(pathspec.New(root), nil)
	ids := d.GetTaskIDs(Active)
	if len(ids) != 1 || ids[0] != "complete" {
		t.Fatalf("got %v, want [complete]", ids)
	}
}

func TestGetTaskIDsMissingRootIsEmpty(t *testing.T) {
	d := New(pathspec.New(filepath.Join(t.TempDir(), "nope")), nil)
	if ids := d.GetTaskIDs(Active); ids != nil {
		t.Fatalf("expected nil, got %v", ids)
	}
}
