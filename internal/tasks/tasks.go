package tasks

import (
	"context"
	"errors"
)

// Task is a unit of background work. Run is invoked with a context that is
// cancelled when the executor shuts down; a non-permanent error triggers a
// retry up to MaxRetries additional attempts.
type Task struct {
	Name       string
	MaxRetries int
	Run        func(ctx context.Context) error
}

// Executor schedules tasks for asynchronous execution.
type Executor interface {
	Enqueue(task Task) error
}

// ErrQueueFull is returned when the executor's buffer has no room.
var ErrQueueFull = errors.New("task queue is full")

// ErrStopped is returned when the executor is no longer accepting work.
var ErrStopped = errors.New("task executor stopped")

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the executor discards the task instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
