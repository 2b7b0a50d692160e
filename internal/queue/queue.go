// Package queue carries the fire-and-forget side effects out of node
// operations. The core only enqueues; execution, retries and delivery are
// the worker's problem.
package queue

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
)

// Task names.
const (
	TaskNodeUpdated         = "node_updated"
	TaskStorageUsageRefresh = "storage_usage_refresh"
	TaskIdentifierUpdate    = "identifier_update"
)

// Task is a pending background job.
type Task struct {
	Name   string `json:"name"`
	NodeID string `json:"node_id"`
	UserID string `json:"user_id,omitempty"`

	// SavedFields lists the node fields the update touched. A second
	// update enqueued before the first runs unions into this set instead
	// of producing a duplicate task.
	SavedFields mapset.Set[string] `json:"-"`

	// Status carries the identifier status for identifier_update tasks.
	Status string `json:"status,omitempty"`
}

// Queue is the task queue contract. FindPending supports the dedup-on-
// enqueue behavior: callers mutate the returned pending task in place
// instead of enqueuing a duplicate.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	// FindPending returns the first not-yet-claimed task matching the
	// predicate, or nil. Backends that cannot inspect pending work return
	// nil.
	FindPending(predicate func(*Task) bool) *Task
	// Dequeue claims the oldest pending task, or nil when the queue is
	// empty.
	Dequeue(ctx context.Context) (*Task, error)
}
