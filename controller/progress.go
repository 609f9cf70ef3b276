package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/guregu/null"
	"github.com/promptbench/promptbench/model"
	"github.com/promptbench/promptbench/utils"
	log "github.com/sirupsen/logrus"
)

// durationWindow is how many recent task durations feed the ETA estimate.
const durationWindow = 10

type batchProgress struct {
	mu          sync.Mutex
	record      model.ProgressRecord
	durations   []int64
	subscribers map[string]chan model.ProgressRecord
	closed      bool
}

// ProgressTracker keeps one live ProgressRecord per batch. Counter updates for
// tasks of the same batch serialize through the per-batch lock; unrelated
// batches never contend with each other.
type ProgressTracker struct {
	mu         sync.RWMutex
	batches    map[string]*batchProgress
	bufferSize int
}

func NewProgressTracker(bufferSize int) *ProgressTracker {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &ProgressTracker{
		batches:    make(map[string]*batchProgress),
		bufferSize: bufferSize,
	}
}

func (pt *ProgressTracker) Attach(batchID string, totalTasks int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.batches[batchID] = &batchProgress{
		record: model.ProgressRecord{
			BatchID:    batchID,
			TotalTasks: totalTasks,
			Status:     model.BatchQueued,
			UpdatedAt:  time.Now(),
		},
		subscribers: make(map[string]chan model.ProgressRecord),
	}
}

func (pt *ProgressTracker) get(batchID string) (*batchProgress, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	bp, ok := pt.batches[batchID]
	return bp, ok
}

// MarkStatus advances the batch lifecycle. Transitions that would revisit a
// state are refused and logged.
func (pt *ProgressTracker) MarkStatus(batchID string, status model.BatchStatus) {
	bp, ok := pt.get(batchID)
	if !ok {
		return
	}
	bp.mu.Lock()
	if !bp.record.Status.CanTransition(status) {
		bp.mu.Unlock()
		log.Errorf("refusing progress transition %s -> %s for batch %s", bp.record.Status, status, batchID)
		return
	}
	bp.record.Status = status
	bp.record.UpdatedAt = time.Now()
	snap := bp.record
	bp.mu.Unlock()
	bp.publish(snap)
}

func (pt *ProgressTracker) RecordTaskStart(batchID string, testCaseID int64) {
	bp, ok := pt.get(batchID)
	if !ok {
		return
	}
	bp.mu.Lock()
	bp.record.CurrentTask = null.StringFrom(fmt.Sprintf("%d", testCaseID))
	bp.record.UpdatedAt = time.Now()
	snap := bp.record
	bp.mu.Unlock()
	bp.publish(snap)
}

// RecordTaskOutcome folds one terminal task into the counters. Retried
// attempts that will run again must not be recorded here.
func (pt *ProgressTracker) RecordTaskOutcome(batchID string, task *model.Task) {
	bp, ok := pt.get(batchID)
	if !ok {
		return
	}
	bp.mu.Lock()
	if task.Passed() {
		bp.record.CompletedTasks++
	} else {
		bp.record.FailedTasks++
	}
	if task.DurationMs > 0 {
		bp.durations = append(bp.durations, task.DurationMs)
		if len(bp.durations) > durationWindow {
			bp.durations = bp.durations[len(bp.durations)-durationWindow:]
		}
	}
	done := bp.record.CompletedTasks + bp.record.FailedTasks
	bp.record.PercentComplete = float64(done) / float64(bp.record.TotalTasks) * 100
	remaining := bp.record.TotalTasks - done
	if len(bp.durations) > 0 && remaining > 0 {
		var sum int64
		for _, d := range bp.durations {
			sum += d
		}
		avg := sum / int64(len(bp.durations))
		bp.record.EstimatedRemainingMs = null.IntFrom(avg * int64(remaining))
	} else if remaining == 0 {
		bp.record.EstimatedRemainingMs = null.IntFrom(0)
	}
	if bp.record.CurrentTask.Valid && bp.record.CurrentTask.String == fmt.Sprintf("%d", task.TestCaseID) {
		bp.record.CurrentTask = null.String{}
	}
	bp.record.UpdatedAt = time.Now()
	snap := bp.record
	bp.mu.Unlock()
	bp.publish(snap)
}

func (pt *ProgressTracker) Snapshot(batchID string) (model.ProgressRecord, bool) {
	bp, ok := pt.get(batchID)
	if !ok {
		return model.ProgressRecord{}, false
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.record, true
}

// Subscribe registers a new observer. The channel carries a full snapshot
// first, then one snapshot per mutation. Slow subscribers lose the oldest
// pending update rather than blocking the writer. Subscribing to a batch
// that already reached a terminal state yields the final snapshot and an
// immediately closed channel.
func (pt *ProgressTracker) Subscribe(batchID string) (string, <-chan model.ProgressRecord, bool) {
	bp, ok := pt.get(batchID)
	if !ok {
		return "", nil, false
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	id := utils.RandStringRunes(8)
	ch := make(chan model.ProgressRecord, pt.bufferSize)
	ch <- bp.record
	if bp.closed {
		close(ch)
		return id, ch, true
	}
	bp.subscribers[id] = ch
	return id, ch, true
}

func (pt *ProgressTracker) Unsubscribe(batchID, subscriberID string) {
	bp, ok := pt.get(batchID)
	if !ok {
		return
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if ch, ok := bp.subscribers[subscriberID]; ok {
		delete(bp.subscribers, subscriberID)
		close(ch)
	}
}

// Complete marks the terminal status and tears down the subscriber channels
// after the final snapshot has been sent.
func (pt *ProgressTracker) Complete(batchID string, status model.BatchStatus) {
	bp, ok := pt.get(batchID)
	if !ok {
		return
	}
	bp.mu.Lock()
	if bp.record.Status.CanTransition(status) {
		bp.record.Status = status
	}
	bp.record.CurrentTask = null.String{}
	bp.record.UpdatedAt = time.Now()
	snap := bp.record
	bp.mu.Unlock()
	bp.publish(snap)

	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.closed = true
	for id, ch := range bp.subscribers {
		delete(bp.subscribers, id)
		close(ch)
	}
}

func (bp *batchProgress) publish(snap model.ProgressRecord) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		return
	}
	for _, ch := range bp.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the oldest pending update to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
