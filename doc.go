// Package parpipe implements a staged parallel pipeline engine. A pipeline
// is a linear chain of stages, each backed by a pool of workers that run the
// same user callable and exchange items over bounded queues.
//
// The first stage of a pipeline acts as a producer: its callable receives a
// nil input iterator and emits items into the pipeline. Every other stage
// acts as a transformer: its callable lazily consumes the merged output of
// the upstream workers and emits new items downstream. Emitting blocks while
// the next queue is at capacity, so back-pressure propagates all the way to
// the producers.
//
// Stream termination is signalled by counting: each worker, once done,
// delivers one end marker per downstream worker, and readers treat a stream
// as closed only after observing the expected number of markers. A worker
// that fails reports the failure, drains its remaining input so upstream
// workers never block on a stranded queue, and still delivers its end
// markers. The caller observes any partial output first and a consolidated
// *PipelineError afterwards.
package parpipe
