package ticket

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("ticket not found")
	ErrUnauthorized = errors.New("ticket api unauthorized")
	// ErrTransient covers rate limiting and server-side failures that
	// are worth retrying on a later turn.
	ErrTransient = errors.New("ticket api transient failure")
)

// Task is one open tracker issue assigned to a user.
type Task struct {
	ID     string
	Title  string
	Status string
}

// Transition is one status change the tracker allows from the task's
// current state.
type Transition struct {
	ID   string
	Name string
}

// API is the tracker surface the agent depends on. The production
// implementation is the REST Client; tests use fakes.
type API interface {
	ListOpenTasks(ctx context.Context, userID string) ([]Task, error)
	AddComment(ctx context.Context, taskID, text string) error
	ListTransitions(ctx context.Context, taskID string) ([]Transition, error)
	ApplyTransition(ctx context.Context, taskID, transitionID string) error
}
