package parpipe

// envelope is the tagged value exchanged over a queue: either a user payload
// or an end marker indicating that one of the senders has finished. No user
// item can ever be mistaken for a marker.
type envelope struct {
	payload interface{}
	end     bool
}

// queue is a bounded FIFO shared by the workers of two adjacent stages.
// Queues are never closed; termination is signalled purely by counting end
// markers, which allows any number of senders to share a queue without
// coordinating among themselves.
type queue struct {
	ch chan envelope
}

// newQueue returns a queue with the specified capacity. A size of zero
// yields an unbuffered queue where senders rendezvous with receivers.
func newQueue(size int) *queue {
	return &queue{ch: make(chan envelope, size)}
}

// put delivers one payload, blocking while the queue is at capacity.
func (q *queue) put(item interface{}) {
	q.ch <- envelope{payload: item}
}

// end delivers one end marker. Senders must emit their marker only after
// all of their payloads.
func (q *queue) end() {
	q.ch <- envelope{end: true}
}

// iter returns a consumer for the queue that expects the specified number of
// senders.
func (q *queue) iter(senders int) *queueIterator {
	return &queueIterator{q: q, remaining: senders}
}

// Iterator yields a stream of items. Transformer callables receive an
// Iterator over the merged output of the upstream stage; end markers are
// filtered out by the implementation and never surface as items.
type Iterator interface {
	// Next advances the iterator. It returns false once the stream is
	// exhausted.
	Next() bool

	// Item returns the current item of the stream.
	Item() interface{}
}

// queueIterator consumes a queue until it has observed the expected number
// of end markers, at which point the stream is considered closed.
type queueIterator struct {
	q         *queue
	remaining int
	item      interface{}
}

// Next implements Iterator.
func (it *queueIterator) Next() bool {
	for it.remaining > 0 {
		env := <-it.q.ch
		if env.end {
			it.remaining--
			continue
		}
		it.item = env.payload
		return true
	}
	return false
}

// Item implements Iterator.
func (it *queueIterator) Item() interface{} {
	return it.item
}
