package evolink

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingImage means an image-edit model was submitted without an
	// input image. Nothing goes over the network in that case.
	ErrMissingImage = errors.New("model requires an input image")

	// ErrNoResult means a task completed but carried no artifact URL.
	ErrNoResult = errors.New("no result url in completed task")

	// ErrWaitTimeout means the poll budget was exhausted before the task
	// reached a terminal state.
	ErrWaitTimeout = errors.New("task wait budget exhausted")
)

// TaskFailedError is a remote-reported generation failure.
type TaskFailedError struct {
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task failed: %s", e.Message)
}
