package parpipe

import (
	"golang.org/x/xerrors"
)

// EmitFunc is invoked by stage callables to push an item to the next stage.
// Calls block while the output queue is at capacity.
type EmitFunc func(item interface{})

// TaskFunc implements the processing logic for a stage. The callable for the
// first stage of a pipeline receives a nil input iterator and acts as a
// producer; every other callable lazily consumes the merged output of the
// upstream workers. Returning a non-nil error (or panicking) marks the
// worker as failed.
type TaskFunc func(in Iterator, emit EmitFunc) error

// task is a single worker executing the stage callable once to completion in
// its own goroutine.
type task struct {
	name string
	fn   TaskFunc

	in        *queue
	inSenders int
	out       *queue
	followers int
	errQueue  *queue
}

// run executes the callable over the whole input and delivers the required
// number of end markers on the way out, whether the callable succeeded or
// not.
func (t *task) run() {
	var in Iterator
	if t.in != nil {
		in = t.in.iter(t.inSenders)
	}

	defer func() {
		for i := 0; i < t.followers; i++ {
			t.out.end()
		}
		t.errQueue.end()
	}()

	if err := t.invoke(in); err != nil {
		t.errQueue.put(TaskError{Task: t.name, Err: err})

		// Consume whatever is left of the input so that upstream
		// workers blocked on a full queue can still finish.
		if in != nil {
			for in.Next() {
			}
		}
	}
}

// invoke calls the user callable, converting panics to worker failures.
func (t *task) invoke(in Iterator) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = xerrors.Errorf("task panic: %w", rErr)
				return
			}
			err = xerrors.Errorf("task panic: %v", r)
		}
	}()

	return t.fn(in, t.out.put)
}
