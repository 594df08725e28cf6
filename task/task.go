// Package task implements a durable task store with a dependency graph.
//
// Tasks are flat records linked by reciprocal blocking edges: when A blocks
// B, A lists B in Blocks and B lists A in BlockedBy. The Manager keeps that
// symmetry through every mutation and clears incoming edges when a task
// completes, so "what is unblocked now" is always answerable from a single
// record.
package task

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ErrNotFound is returned when a task id has no record.
var ErrNotFound = errors.New("task not found")

// ValidationError rejects a mutation without touching the stored record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Task is one record in a task list. Blocks and BlockedBy are the two
// directions of the same edge set and always agree: id ∈ other.BlockedBy
// exactly when other.ID ∈ task.Blocks.
type Task struct {
	ID          string            `json:"id"`
	Subject     string            `json:"subject"`
	Description string            `json:"description,omitempty"`
	ActiveForm  string            `json:"active_form,omitempty"`
	Status      Status            `json:"status"`
	Owner       string            `json:"owner,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Blocks      []string          `json:"blocks,omitempty"`
	BlockedBy   []string          `json:"blocked_by,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
}

// Clone returns a deep copy so callers can't alias stored slices.
func (t Task) Clone() Task {
	c := t
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Blocks = append([]string(nil), t.Blocks...)
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	return c
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
