package observer

import "errors"

// ErrNilResourceFactory is the contract-violation fault raised when
// TaskObserver is constructed without a usable resource.Factory
// (spec.md §7's "Contract violation at construction").
var ErrNilResourceFactory = errors.New("observer: resource factory is required")

// ErrAlreadyFinished and ErrAlreadyActive record structural anomalies
// (spec.md §7): a task_id observed in both on-disk subtrees at once.
// Reconciliation logs and skips the offending step; it never aborts
// the pass or reaches a caller.
var (
	ErrAlreadyFinished = errors.New("observer: task already present in finished registry")
	ErrAlreadyActive   = errors.New("observer: task already present in active registry")
)
