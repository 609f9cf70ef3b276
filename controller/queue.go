package controller

import (
	"sort"
	"sync"
	"time"

	"github.com/promptbench/promptbench/config"
	"github.com/promptbench/promptbench/model"
)

type QueueTicket struct {
	BatchID    string    `json:"batch_id"`
	Position   int       `json:"position"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type QueueStats struct {
	Depth          int    `json:"depth"`
	TotalEnqueued  uint64 `json:"total_enqueued"`
	TotalDequeued  uint64 `json:"total_dequeued"`
	HighestWaiting int    `json:"highest_waiting_priority"`
}

type queueItem struct {
	batch *model.BatchRequest
	seq   uint64
}

// ExecutionQueue orders pending batches by priority descending, then by
// arrival sequence. The queue itself is unbounded; the coordinator applies the
// depth ceiling at submit time.
type ExecutionQueue struct {
	mu            sync.Mutex
	items         []*queueItem
	seq           uint64
	totalEnqueued uint64
	totalDequeued uint64
	notify        chan struct{}
}

func NewExecutionQueue() *ExecutionQueue {
	return &ExecutionQueue{
		notify: make(chan struct{}, 1),
	}
}

func (q *ExecutionQueue) Enqueue(batch *model.BatchRequest) QueueTicket {
	q.mu.Lock()
	q.seq++
	item := &queueItem{batch: batch, seq: q.seq}
	// ties are broken by arrival sequence, never by identifier value
	pos := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].batch.Priority < batch.Priority
	})
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
	q.totalEnqueued++
	depth := len(q.items)
	q.mu.Unlock()

	config.QueueDepthGauge.Set(float64(depth))
	q.signal()
	return QueueTicket{
		BatchID:    batch.ID,
		Position:   pos,
		EnqueuedAt: time.Now(),
	}
}

// Dequeue is non-blocking. The worker pool waits on Signal when it is empty.
func (q *ExecutionQueue) Dequeue() (*model.BatchRequest, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.totalDequeued++
	depth := len(q.items)
	q.mu.Unlock()

	config.QueueDepthGauge.Set(float64(depth))
	if depth > 0 {
		q.signal()
	}
	return item.batch, true
}

// Remove drops a batch that has not yet been dispatched. Removing a batch
// already handed to the worker pool is a no-op here.
func (q *ExecutionQueue) Remove(batchID string) bool {
	q.mu.Lock()
	for i, item := range q.items {
		if item.batch.ID == batchID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			depth := len(q.items)
			q.mu.Unlock()
			config.QueueDepthGauge.Set(float64(depth))
			return true
		}
	}
	q.mu.Unlock()
	return false
}

func (q *ExecutionQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := QueueStats{
		Depth:         len(q.items),
		TotalEnqueued: q.totalEnqueued,
		TotalDequeued: q.totalDequeued,
	}
	if len(q.items) > 0 {
		stats.HighestWaiting = q.items[0].batch.Priority
	}
	return stats
}

func (q *ExecutionQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Signal fires whenever work lands in the queue.
func (q *ExecutionQueue) Signal() <-chan struct{} {
	return q.notify
}

func (q *ExecutionQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
