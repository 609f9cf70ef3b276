package controller

import (
	"context"
	"sync"
	"time"

	"github.com/promptbench/promptbench/config"
	"github.com/promptbench/promptbench/model"
	"github.com/promptbench/promptbench/monitor"
	log "github.com/sirupsen/logrus"
)

// slotPollInterval is how often a waiting dispatcher re-checks for headroom.
const slotPollInterval = 50 * time.Millisecond

// batchExecution tracks one batch from dispatch to finalize. The outcomes
// slice is indexed by spec position so the final result preserves submission
// order no matter how tasks interleave.
type batchExecution struct {
	batch        *model.BatchRequest
	ctx          context.Context
	cancel       context.CancelFunc
	startedAt    time.Time
	cancelReason string

	mu       sync.Mutex
	outcomes []*model.Task
	running  int
	reserved bool
	stopped  bool
	settled  bool
	wg       sync.WaitGroup
}

func newBatchExecution(batch *model.BatchRequest) *batchExecution {
	ctx, cancel := context.WithCancel(context.Background())
	return &batchExecution{
		batch:    batch,
		ctx:      ctx,
		cancel:   cancel,
		outcomes: make([]*model.Task, len(batch.TaskSpecs)),
	}
}

func (be *batchExecution) setOutcome(i int, task *model.Task) {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.outcomes[i] = task
}

// markStop trips the stop-on-first-failure latch. Already-dispatched tasks
// are allowed to finish.
func (be *batchExecution) markStop() {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.stopped = true
}

// takeReservedSlot consumes the slot held for this batch since admission,
// if one is still held.
func (be *batchExecution) takeReservedSlot() bool {
	be.mu.Lock()
	defer be.mu.Unlock()
	if !be.reserved {
		return false
	}
	be.reserved = false
	return true
}

// markSettled freezes the batch once its result has been assembled. Task
// outcomes arriving after this point are discarded.
func (be *batchExecution) markSettled() {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.settled = true
}

func (be *batchExecution) isSettled() bool {
	be.mu.Lock()
	defer be.mu.Unlock()
	return be.settled
}

func (be *batchExecution) shouldStop() bool {
	be.mu.Lock()
	defer be.mu.Unlock()
	return be.stopped
}

func (be *batchExecution) Cancel(reason string) {
	be.mu.Lock()
	be.cancelReason = reason
	be.mu.Unlock()
	be.cancel()
}

func (be *batchExecution) cancelled() bool {
	return be.ctx.Err() != nil
}

// reason returns the caller-supplied cancel reason, or the fallback when the
// batch was never explicitly cancelled.
func (be *batchExecution) reason(fallback string) string {
	be.mu.Lock()
	defer be.mu.Unlock()
	if be.cancelReason != "" {
		return be.cancelReason
	}
	return fallback
}

// terminalStatus derives the batch terminal state from what happened.
func (be *batchExecution) terminalStatus() model.BatchStatus {
	if be.cancelled() {
		return model.BatchCancelled
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	for _, t := range be.outcomes {
		if t != nil && t.CountsAsFailed() {
			return model.BatchFailed
		}
	}
	return model.BatchCompleted
}

// WorkerPool pulls batches off the queue when the resource monitor reports
// headroom and runs their tasks with an elastic concurrency bound.
type WorkerPool struct {
	queue          *ExecutionQueue
	monitor        *monitor.ResourceMonitor
	tracker        *ProgressTracker
	runner         *taskRunner
	store          model.ResultStore
	maxConcurrency int
	resolve        func(batchID string) *batchExecution
	onBatchDone    func(be *batchExecution)

	mu       sync.Mutex
	running  int
	active   map[string]*batchExecution
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

func (p *WorkerPool) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.dispatchLoop(ctx)
}

func (p *WorkerPool) dispatchLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(slotPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-p.queue.Signal():
		case <-ticker.C:
		}
		p.admit()
	}
}

// admit pulls as many batches as current headroom allows.
func (p *WorkerPool) admit() {
	for {
		recommended := p.monitor.RecommendedConcurrency(p.maxConcurrency)
		if recommended == 0 {
			// monitor paused, reject nothing but start nothing either
			return
		}
		p.mu.Lock()
		headroom := p.running < recommended
		p.mu.Unlock()
		if !headroom {
			return
		}
		batch, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		be := p.resolve(batch.ID)
		if be == nil {
			continue
		}
		// reserve the free slot for this batch's first task so a lower
		// priority batch dequeued on a later pass cannot jump ahead of it
		p.mu.Lock()
		p.running++
		p.active[batch.ID] = be
		p.mu.Unlock()
		be.mu.Lock()
		be.running++
		be.reserved = true
		be.mu.Unlock()
		p.wg.Add(1)
		go p.runBatch(be)
	}
}

func (p *WorkerPool) runBatch(be *batchExecution) {
	defer p.wg.Done()
	be.startedAt = time.Now()
	p.tracker.MarkStatus(be.batch.ID, model.BatchRunning)
	log.Printf("Batch %s started with %d tasks", be.batch.ID, len(be.batch.TaskSpecs))

	for i, spec := range be.batch.TaskSpecs {
		if be.cancelled() {
			p.skipTask(be, i, spec, be.reason("batch cancelled before task start"))
			continue
		}
		if be.shouldStop() {
			p.skipTask(be, i, spec, "stopped on first failure")
			continue
		}
		if !be.takeReservedSlot() && !p.acquireSlot(be) {
			p.skipTask(be, i, spec, be.reason("batch cancelled while waiting for a slot"))
			continue
		}
		// the latch may have tripped while this task was waiting for a slot
		if be.shouldStop() {
			p.releaseSlot(be)
			p.skipTask(be, i, spec, "stopped on first failure")
			continue
		}
		be.wg.Add(1)
		p.wg.Add(1)
		go p.runTask(be, i, spec)
	}
	// a reservation never consumed by a task frees its slot
	if be.takeReservedSlot() {
		p.releaseSlot(be)
	}
	be.wg.Wait()

	p.mu.Lock()
	delete(p.active, be.batch.ID)
	p.mu.Unlock()
	p.onBatchDone(be)
}

// acquireSlot blocks until the global and per-batch concurrency bounds both
// leave room, or the batch is cancelled.
func (p *WorkerPool) acquireSlot(be *batchExecution) bool {
	for {
		if be.cancelled() {
			return false
		}
		recommended := p.monitor.RecommendedConcurrency(p.maxConcurrency)
		batchLimit := be.batch.Config.MaxConcurrentTasks
		if batchLimit <= 0 || batchLimit > p.maxConcurrency {
			batchLimit = p.maxConcurrency
		}
		p.mu.Lock()
		be.mu.Lock()
		if recommended > 0 && p.running < recommended && be.running < batchLimit {
			p.running++
			be.running++
			be.mu.Unlock()
			p.mu.Unlock()
			return true
		}
		be.mu.Unlock()
		p.mu.Unlock()
		select {
		case <-be.ctx.Done():
			return false
		case <-time.After(slotPollInterval):
		}
	}
}

func (p *WorkerPool) releaseSlot(be *batchExecution) {
	p.mu.Lock()
	p.running--
	p.mu.Unlock()
	be.mu.Lock()
	be.running--
	be.mu.Unlock()
}

func (p *WorkerPool) runTask(be *batchExecution, i int, spec *model.TaskSpec) {
	defer be.wg.Done()
	defer p.wg.Done()
	attempt := 1
	for {
		p.tracker.RecordTaskStart(be.batch.ID, spec.TestCaseID)
		p.monitor.TaskStarted()
		task := p.runner.run(be.ctx, be.batch, spec, attempt)
		p.monitor.TaskFinished()

		// hard errors are re-enqueued; assertion failures never are
		if task.Status == model.TaskErrored && attempt <= be.batch.Config.RetryCount && !be.cancelled() {
			log.Printf("Task %d in batch %s errored on attempt %d, requeueing: %s",
				spec.TestCaseID, be.batch.ID, attempt, task.Error)
			p.releaseSlot(be)
			attempt++
			if !p.acquireSlot(be) {
				task.Status = model.TaskCancelled
				task.Error = be.reason("batch cancelled during retry wait")
				p.recordOutcome(be, i, task)
				return
			}
			continue
		}
		p.recordOutcome(be, i, task)
		p.releaseSlot(be)
		return
	}
}

func (p *WorkerPool) recordOutcome(be *batchExecution, i int, task *model.Task) {
	if be.isSettled() {
		log.Printf("Discarding outcome for test case %d, batch %s already settled", task.TestCaseID, be.batch.ID)
		return
	}
	be.setOutcome(i, task)
	config.TaskStatusCounter.WithLabelValues(be.batch.ID, be.batch.Model, string(task.Status)).Inc()
	if task.DurationMs > 0 {
		config.TaskDurationSummary.WithLabelValues(be.batch.ID, be.batch.Model).Observe(float64(task.DurationMs))
	}
	p.tracker.RecordTaskOutcome(be.batch.ID, task)
	if p.store != nil {
		if err := p.store.PersistTaskOutcome(task); err != nil {
			log.Errorf("persisting task outcome for batch %s failed: %v", be.batch.ID, err)
		}
	}
	if task.CountsAsFailed() && be.batch.Config.StopOnFirstFailure {
		be.markStop()
	}
}

// skipTask records a terminal Cancelled outcome for a task that never started.
func (p *WorkerPool) skipTask(be *batchExecution, i int, spec *model.TaskSpec, reason string) {
	task := &model.Task{
		BatchID:    be.batch.ID,
		TestCaseID: spec.TestCaseID,
		Status:     model.TaskCancelled,
		Error:      reason,
	}
	p.recordOutcome(be, i, task)
}

// Stop refuses new work, cancels in-flight batches and waits for the drain
// period. Batches still running past the deadline are finalized with their
// unfinished tasks marked Cancelled; whatever those tasks eventually produce
// is discarded.
func (p *WorkerPool) Stop(ctx context.Context) {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.mu.Lock()
	actives := make([]*batchExecution, 0, len(p.active))
	for _, be := range p.active {
		actives = append(actives, be)
	}
	p.mu.Unlock()
	for _, be := range actives {
		be.Cancel("worker pool shutting down")
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Print("Worker pool drained")
	case <-ctx.Done():
		log.Error("Worker pool drain deadline exceeded, cancelling remaining tasks")
		for _, be := range actives {
			p.onBatchDone(be)
		}
	}
}
