package parpipe

import (
	"fmt"
	"sync"
)

// Stage describes a pool of identically-configured workers performing one
// step of a pipeline. Stages are created with a single worker and an
// unbuffered output queue; use Setup to size the pool and the queue.
//
// A stage descriptor is reusable: once a run has been fully consumed, the
// same stages may be composed and executed again. A descriptor must not
// take part in two concurrent runs.
type Stage struct {
	name    string
	fn      TaskFunc
	workers int
	qsize   int

	tasks []*task
	wg    sync.WaitGroup
}

// NewStage returns a stage executing fn. The name is used to identify the
// stage's workers in error reports. NewStage panics if the name is empty or
// fn is nil.
func NewStage(name string, fn TaskFunc) *Stage {
	if name == "" {
		panic("NewStage: name must not be empty")
	}
	if fn == nil {
		panic("NewStage: fn must not be nil")
	}
	return &Stage{name: name, fn: fn, workers: 1}
}

// Setup configures the number of parallel workers and the capacity of the
// stage's output queue. A qsize of zero yields an unbuffered queue where
// senders rendezvous with receivers. Setup panics unless workers >= 1 and
// qsize >= 0.
func (s *Stage) Setup(workers, qsize int) *Stage {
	if workers <= 0 {
		panic("Setup: workers must be greater than zero")
	}
	if qsize < 0 {
		panic("Setup: qsize must be greater than or equal to zero")
	}
	s.workers = workers
	s.qsize = qsize
	return s
}

// Workers returns the number of parallel workers for this stage.
func (s *Stage) Workers() int {
	return s.workers
}

// QueueSize returns the capacity of the stage's output queue.
func (s *Stage) QueueSize() int {
	return s.qsize
}

// String implements fmt.Stringer.
func (s *Stage) String() string {
	return fmt.Sprintf("%s(x%d)", s.name, s.workers)
}

// Results runs the stage as a one-stage pipeline and returns the stream of
// its outputs.
func (s *Stage) Results() *ResultIterator {
	return New(s).Results()
}

// Execute runs the stage as a one-stage pipeline and returns the last item
// it produced.
func (s *Stage) Execute() (interface{}, error) {
	return New(s).Execute()
}

// pool lazily materializes the workers associated with this stage.
func (s *Stage) pool() []*task {
	if s.tasks == nil {
		s.tasks = make([]*task, s.workers)
		for i := range s.tasks {
			s.tasks[i] = &task{name: fmt.Sprintf("%s-%d", s.name, i), fn: s.fn}
		}
	}
	return s.tasks
}

// setIn attaches the input queue and records the number of upstream workers
// that send to it.
func (s *Stage) setIn(q *queue, senders int) {
	for _, t := range s.pool() {
		t.in = q
		t.inSenders = senders
	}
}

// setOut attaches the output queue and records the number of downstream
// workers each task must deliver an end marker to.
func (s *Stage) setOut(q *queue, followers int) {
	for _, t := range s.pool() {
		t.out = q
		t.followers = followers
	}
}

// setErr attaches the shared error queue.
func (s *Stage) setErr(q *queue) {
	for _, t := range s.pool() {
		t.errQueue = q
	}
}

// start launches one goroutine per worker.
func (s *Stage) start() {
	for _, t := range s.pool() {
		s.wg.Add(1)
		go func(t *task) {
			defer s.wg.Done()
			t.run()
		}(t)
	}
}

// join waits for all workers to finish and discards them so the descriptor
// can be reused for another run.
func (s *Stage) join() {
	s.wg.Wait()
	s.tasks = nil
}
