package tofcan

import "sync"

// DefaultQueueCapacity is the capacity used when NewBatchQueue is given a
// non-positive size.
const DefaultQueueCapacity = 8

// BatchQueue is a bounded FIFO of batches shared between the receiving
// goroutine and consumers. Push never blocks: when the queue is full the
// oldest entry is overwritten. Pop never blocks either.
type BatchQueue struct {
	mu          sync.Mutex
	buf         []SensorBatch
	head        int // index of the oldest entry
	n           int
	overwritten uint64
}

// NewBatchQueue returns an empty queue holding up to capacity batches.
func NewBatchQueue(capacity int) *BatchQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &BatchQueue{buf: make([]SensorBatch, capacity)}
}

// Push appends b, dropping the oldest batch if the queue is full. It
// reports whether an entry was overwritten.
func (q *BatchQueue) Push(b SensorBatch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	tail := (q.head + q.n) % len(q.buf)
	q.buf[tail] = b
	if q.n == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.overwritten++
		return true
	}
	q.n++
	return false
}

// Pop removes and returns the oldest batch. ok is false when the queue is
// empty.
func (q *BatchQueue) Pop() (b SensorBatch, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return SensorBatch{}, false
	}
	b = q.buf[q.head]
	q.buf[q.head] = SensorBatch{}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return b, true
}

// Len returns the number of queued batches.
func (q *BatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the queue capacity.
func (q *BatchQueue) Cap() int { return len(q.buf) }

// Overwritten returns how many batches were dropped by a full queue.
func (q *BatchQueue) Overwritten() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overwritten
}
