package parpipe

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// TaskError describes the failure of a single worker. Task is the worker
// name in the form "<stage>-<index>".
type TaskError struct {
	Task string
	Err  error
}

// Error implements error.
func (e TaskError) Error() string {
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

// Unwrap returns the underlying cause.
func (e TaskError) Unwrap() error {
	return e.Err
}

// PipelineError is reported to the caller when one or more workers failed
// during a pipeline run. The message summarizes the first failure; the full
// list is retained in Failures.
type PipelineError struct {
	Failures []TaskError
}

// Error implements error.
func (e *PipelineError) Error() string {
	first := e.Failures[0]
	if len(e.Failures) == 1 {
		return fmt.Sprintf("The task %q raised %v", first.Task, first.Err)
	}
	return fmt.Sprintf("%d tasks raised an exception. First error reported on task %q: %v",
		len(e.Failures), first.Task, first.Err)
}

// Unwrap returns the first collected failure.
func (e *PipelineError) Unwrap() error {
	return e.Failures[0]
}

// Aggregate returns every collected failure combined into a single
// multi-error.
func (e *PipelineError) Aggregate() error {
	var err error
	for _, f := range e.Failures {
		err = multierror.Append(err, f)
	}
	return err
}
