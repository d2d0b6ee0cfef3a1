package pipeline

import "sync"

// reorderBuffer re-sequences out-of-order task completions back into strict
// ingestion order (spec.md §4.5 "ordered mode"). Each enrich task is tagged
// with a monotonically increasing sequence number when it is pulled from the
// source; Complete is called once that task's enrichment finishes, in
// whatever order the worker pool happens to finish them. The registered emit
// function only runs once every lower-numbered sequence has already run,
// buffered meanwhile by the small map below (bounded by the enrich
// concurrency window: at most N tasks can be in flight ahead of the oldest
// unfinished one).
type reorderBuffer struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]func()
}

func newReorderBuffer() *reorderBuffer {
	return &reorderBuffer{pending: map[uint64]func(){}}
}

// Complete registers seq's emit callback and runs every callback, in
// sequence order, that is now unblocked. emit is a full publish+ack, which
// blocks on network I/O; running it while rb.mu is held is deliberate
// head-of-line blocking — ordered mode trades throughput for strict output
// order, so one slow publish stalls every later sequence number behind it.
func (rb *reorderBuffer) Complete(seq uint64, emit func()) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.pending[seq] = emit
	for {
		fn, ok := rb.pending[rb.next]
		if !ok {
			return
		}
		delete(rb.pending, rb.next)
		rb.next++
		fn()
	}
}
