package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/promptbench/promptbench/model"
	"github.com/promptbench/promptbench/monitor"
	"github.com/promptbench/promptbench/object_storage"
	"github.com/promptbench/promptbench/utils"
	log "github.com/sirupsen/logrus"
)

type SchedulerOptions struct {
	QueueCeiling       int
	MaxConcurrency     int
	TaskTimeout        time.Duration
	DrainTimeout       time.Duration
	ProgressBufferSize int
}

// Collaborators are the injected external capabilities. The controller never
// reaches for globals so tests can swap every one of them.
type Collaborators struct {
	Invoker    ModelInvoker
	Assertions AssertionEngine
	Templates  model.TemplateStore
	Store      model.ResultStore
	Artifacts  object_storage.StorageInterface
}

type batchState struct {
	exec      *batchExecution
	finalized bool
	result    *model.BatchResult
}

// Controller is the execution coordinator: it admits batches, wires
// queue -> pool -> tracker, applies cancellation and assembles final results.
type Controller struct {
	Queue   *ExecutionQueue
	Pool    *WorkerPool
	Tracker *ProgressTracker
	Monitor *monitor.ResourceMonitor

	opts   SchedulerOptions
	collab Collaborators

	mu      sync.Mutex
	batches map[string]*batchState
}

func NewController(opts SchedulerOptions, rm *monitor.ResourceMonitor, collab Collaborators) *Controller {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 10
	}
	if opts.QueueCeiling <= 0 {
		opts.QueueCeiling = 100
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 60 * time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	c := &Controller{
		Queue:   NewExecutionQueue(),
		Tracker: NewProgressTracker(opts.ProgressBufferSize),
		Monitor: rm,
		opts:    opts,
		collab:  collab,
		batches: make(map[string]*batchState),
	}
	runner := &taskRunner{
		invoker:     collab.Invoker,
		assertions:  collab.Assertions,
		templates:   collab.Templates,
		artifacts:   collab.Artifacts,
		taskTimeout: opts.TaskTimeout,
	}
	c.Pool = &WorkerPool{
		queue:          c.Queue,
		monitor:        rm,
		tracker:        c.Tracker,
		runner:         runner,
		store:          collab.Store,
		maxConcurrency: opts.MaxConcurrency,
		resolve:        c.resolveBatch,
		onBatchDone:    c.finalizeExecution,
		active:         make(map[string]*batchExecution),
		stopChan:       make(chan struct{}),
	}
	return c
}

// StartRunning launches the resource monitor and the worker pool.
func (c *Controller) StartRunning() {
	c.Monitor.Start()
	c.Pool.Start(context.Background())
}

// Stop drains the pool within the configured drain period.
func (c *Controller) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DrainTimeout)
	defer cancel()
	c.Pool.Stop(ctx)
	c.Monitor.Stop()
}

// Submit validates the batch synchronously and enqueues it. Everything after
// this call is asynchronous.
func (c *Controller) Submit(req *model.BatchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", makeInvalidBatchError(err.Error())
	}
	if _, err := c.collab.Templates.GetTemplate(req.TemplateID); err != nil {
		return "", makeTemplateNotFoundError(fmt.Sprintf("template %d", req.TemplateID))
	}
	for _, spec := range req.TaskSpecs {
		tc, err := c.collab.Templates.GetTestCase(spec.TestCaseID)
		if err != nil {
			return "", makeTemplateNotFoundError(fmt.Sprintf("test case %d", spec.TestCaseID))
		}
		if tc.TemplateID != req.TemplateID {
			return "", makeInvalidBatchError(fmt.Sprintf("test case %d does not belong to template %d", spec.TestCaseID, req.TemplateID))
		}
		if err := tc.ValidateAssertions(); err != nil {
			return "", makeInvalidBatchError(err.Error())
		}
	}
	if depth := c.Queue.Depth(); depth >= c.opts.QueueCeiling {
		return "", makeQueueFullError(depth, c.opts.QueueCeiling)
	}

	req.ID = model.NewBatchID()
	req.SubmittedAt = time.Now()
	be := newBatchExecution(req)

	c.mu.Lock()
	c.batches[req.ID] = &batchState{exec: be}
	c.mu.Unlock()
	c.Tracker.Attach(req.ID, len(req.TaskSpecs))

	ticket := c.Queue.Enqueue(req)
	log.Printf("Batch %s submitted with priority %d at queue position %d", req.ID, req.Priority, ticket.Position)
	return req.ID, nil
}

func (c *Controller) resolveBatch(batchID string) *batchExecution {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.batches[batchID]
	if !ok {
		return nil
	}
	return state.exec
}

func (c *Controller) GetProgress(batchID string) (model.ProgressRecord, error) {
	record, ok := c.Tracker.Snapshot(batchID)
	if !ok {
		return model.ProgressRecord{}, makeNotFoundError(batchID)
	}
	return record, nil
}

// Cancel aborts a batch. Not-yet-started work is dropped immediately,
// in-flight model calls are signalled through the batch context.
func (c *Controller) Cancel(batchID, reason string) error {
	c.mu.Lock()
	state, ok := c.batches[batchID]
	if !ok {
		c.mu.Unlock()
		return makeNotFoundError(batchID)
	}
	if state.finalized {
		c.mu.Unlock()
		return makeAlreadyTerminalError(batchID)
	}
	be := state.exec
	c.mu.Unlock()

	log.Printf("Cancelling batch %s: %s", batchID, reason)
	if c.Queue.Remove(batchID) {
		// never dispatched, settle every task here
		be.Cancel(reason)
		for i, spec := range be.batch.TaskSpecs {
			c.Pool.skipTask(be, i, spec, reason)
		}
		c.finalizeExecution(be)
		return nil
	}
	be.Cancel(reason)
	return nil
}

// GetResult returns the terminal aggregate. Every call after completion
// returns the identical result.
func (c *Controller) GetResult(batchID string) (*model.BatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.batches[batchID]
	if !ok {
		return nil, makeNotFoundError(batchID)
	}
	if !state.finalized {
		return nil, makeNotYetCompleteError(batchID)
	}
	return state.result, nil
}

func (c *Controller) QueueStats() QueueStats {
	return c.Queue.Stats()
}

// SubscribeProgress attaches a live observer to a batch, for the streaming API.
func (c *Controller) SubscribeProgress(batchID string) (string, <-chan model.ProgressRecord, error) {
	id, ch, ok := c.Tracker.Subscribe(batchID)
	if !ok {
		return "", nil, makeNotFoundError(batchID)
	}
	return id, ch, nil
}

func (c *Controller) UnsubscribeProgress(batchID, subscriberID string) {
	c.Tracker.Unsubscribe(batchID, subscriberID)
}

// finalizeExecution assembles and persists the BatchResult exactly once.
func (c *Controller) finalizeExecution(be *batchExecution) {
	batchID := be.batch.ID
	c.mu.Lock()
	state, ok := c.batches[batchID]
	if !ok || state.finalized {
		c.mu.Unlock()
		return
	}
	state.finalized = true
	c.mu.Unlock()
	be.markSettled()

	status := be.terminalStatus()
	var totalMs int64
	if !be.startedAt.IsZero() {
		totalMs = time.Since(be.startedAt).Milliseconds()
	}
	be.mu.Lock()
	outcomes := make([]*model.Task, len(be.outcomes))
	copy(outcomes, be.outcomes)
	be.mu.Unlock()
	for i, t := range outcomes {
		if t == nil {
			outcomes[i] = &model.Task{
				BatchID:    batchID,
				TestCaseID: be.batch.TaskSpecs[i].TestCaseID,
				Status:     model.TaskCancelled,
				Error:      "task never reached a terminal state",
			}
		}
	}
	br := model.NewBatchResult(batchID, status, outcomes, totalMs)
	if c.collab.Store != nil {
		err := utils.RetryWithLimit(3, time.Second, func() error {
			return c.collab.Store.Persist(br)
		}, nil)
		if err != nil {
			// keep the computed outcomes, surface a degraded result instead
			br.OverallPassed = false
			br.Diagnostic = fmt.Sprintf("result persistence failed: %v", err)
			log.Errorf("Batch %s finalized with degraded result: %v", batchID, err)
		}
	}
	c.mu.Lock()
	state.result = br
	c.mu.Unlock()
	c.Tracker.Complete(batchID, status)
	log.Printf("Batch %s finished with status %s (%d/%d passed)", batchID, status, br.PassedTasks, br.TotalTasks)
}
