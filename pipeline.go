package parpipe

import (
	"io/ioutil"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Pipeline is an ordered list of stages executed as one streaming job. The
// output queue of each stage feeds the workers of the next one; the outputs
// of the final stage are streamed back to the caller.
type Pipeline struct {
	stages []*Stage
	logger *logrus.Entry
}

// New returns a pipeline that passes items through each one of the specified
// stages in order. New panics if no stages are specified.
func New(stages ...*Stage) *Pipeline {
	if len(stages) == 0 {
		panic("New: at least one stage must be specified")
	}
	return &Pipeline{stages: stages}
}

// Items returns a pipeline whose implicit first stage is a single identity
// producer emitting each of the specified values once.
func Items(values ...interface{}) *Pipeline {
	vals := append([]interface{}(nil), values...)
	return New(NewStage("items", func(_ Iterator, emit EmitFunc) error {
		for _, v := range vals {
			emit(v)
		}
		return nil
	}))
}

// Then appends a stage to the pipeline and returns the pipeline.
func (p *Pipeline) Then(s *Stage) *Pipeline {
	p.stages = append(p.stages, s)
	return p
}

// Append concatenates the stages of another pipeline onto this one and
// returns the combined pipeline.
func (p *Pipeline) Append(other *Pipeline) *Pipeline {
	p.stages = append(p.stages, other.stages...)
	return p
}

// SetLogger configures the logger used for run diagnostics. If not set, an
// output-discarding logger is used instead.
func (p *Pipeline) SetLogger(logger *logrus.Entry) *Pipeline {
	p.logger = logger
	return p
}

func (p *Pipeline) log() *logrus.Entry {
	if p.logger == nil {
		p.logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return p.logger
}

// Results wires the stages together, starts every worker and returns the
// stream of final outputs. The iterator must be driven to exhaustion: the
// error drain and the worker join run only after the last item has been
// delivered. Abandoning the iterator early leaks the run's workers.
func (p *Pipeline) Results() *ResultIterator {
	totalWorkers := 0
	for _, s := range p.stages {
		totalWorkers += s.Workers()
	}

	// The output queue of each stage becomes the input of the next one.
	// Each worker delivers one end marker per downstream worker, so a
	// downstream worker declares its input closed after observing one
	// marker per upstream worker.
	for i := 0; i < len(p.stages)-1; i++ {
		cur, next := p.stages[i], p.stages[i+1]
		q := newQueue(cur.QueueSize())
		cur.setOut(q, next.Workers())
		next.setIn(q, cur.Workers())
	}

	last := p.stages[len(p.stages)-1]
	sink := newQueue(last.QueueSize())
	last.setOut(sink, 1) // the result iterator is the single consumer

	// Each worker writes at most one failure and exactly one end marker,
	// and the queue is drained only after the sink is exhausted; sizing
	// it for the worst case means no worker ever blocks on it.
	errQueue := newQueue(2 * totalWorkers)

	logger := p.log().WithField("run_id", uuid.New())
	for _, s := range p.stages {
		s.setErr(errQueue)
		logger.WithField("stage", s.String()).Debug("starting stage workers")
		s.start()
	}

	return &ResultIterator{
		pipeline:     p,
		logger:       logger,
		sink:         sink.iter(last.Workers()),
		errQueue:     errQueue,
		totalWorkers: totalWorkers,
	}
}

// Execute drives the pipeline to exhaustion and returns the last item
// produced, or nil if the pipeline produced nothing. If any worker failed,
// the returned error is a *PipelineError.
func (p *Pipeline) Execute() (interface{}, error) {
	var last interface{}
	it := p.Results()
	for it.Next() {
		last = it.Item()
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return last, nil
}

// ResultIterator streams the final outputs of a pipeline run.
type ResultIterator struct {
	pipeline     *Pipeline
	logger       *logrus.Entry
	sink         *queueIterator
	errQueue     *queue
	totalWorkers int

	done bool
	err  error
}

// Next advances the iterator. It returns false once every worker of the
// final stage has finished, at which point Error reports the outcome of the
// whole run.
func (it *ResultIterator) Next() bool {
	if it.done {
		return false
	}
	if it.sink.Next() {
		return true
	}
	it.finish()
	return false
}

// Item returns the current output item.
func (it *ResultIterator) Item() interface{} {
	return it.sink.Item()
}

// Error returns the consolidated failure for the run, valid once Next has
// returned false. A run where some output was produced before a worker
// failed delivers the partial output first and reports the failure here.
func (it *ResultIterator) Error() error {
	return it.err
}

// finish collects worker failures and joins every stage. A downstream
// worker cannot finish before all of its upstream workers have, so by the
// time the sink is exhausted every worker has delivered its end markers and
// draining the error queue cannot block indefinitely.
func (it *ResultIterator) finish() {
	it.done = true

	var failures []TaskError
	for errIt := it.errQueue.iter(it.totalWorkers); errIt.Next(); {
		failures = append(failures, errIt.Item().(TaskError))
	}

	for _, s := range it.pipeline.stages {
		s.join()
	}

	if len(failures) > 0 {
		it.err = &PipelineError{Failures: failures}
		it.logger.WithField("failures", len(failures)).Debug("pipeline run failed")
		return
	}
	it.logger.Debug("pipeline run complete")
}
