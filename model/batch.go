package model

import (
	"fmt"
	"time"
)

type BatchStatus string

const (
	BatchQueued    BatchStatus = "queued"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchCancelled BatchStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from the status.
func (bs BatchStatus) IsTerminal() bool {
	switch bs {
	case BatchCompleted, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

// CanTransition enforces the monotonic batch lifecycle:
// queued -> running -> {completed|failed|cancelled}. Cancellation is also
// allowed straight from queued. No state is ever revisited.
func (bs BatchStatus) CanTransition(next BatchStatus) bool {
	switch bs {
	case BatchQueued:
		return next == BatchRunning || next == BatchCancelled
	case BatchRunning:
		return next.IsTerminal()
	}
	return false
}

// RunConfig carries the per-batch execution knobs.
type RunConfig struct {
	MaxConcurrentTasks int  `json:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	TaskTimeoutSec     int  `json:"task_timeout" yaml:"task_timeout"`
	StopOnFirstFailure bool `json:"stop_on_first_failure" yaml:"stop_on_first_failure"`
	RetryCount         int  `json:"retry_count" yaml:"retry_count"`
}

// TaskSpec references one test case to run and optional binding overrides
// applied on top of the bindings stored with the test case.
type TaskSpec struct {
	TestCaseID int64             `json:"test_case_id" yaml:"testcaseid"`
	Bindings   map[string]string `json:"bindings,omitempty" yaml:"bindings,omitempty"`
}

// BatchRequest is immutable once admitted to the queue.
type BatchRequest struct {
	ID          string      `json:"id"`
	TemplateID  int64       `json:"template_id"`
	TaskSpecs   []*TaskSpec `json:"task_specs"`
	Model       string      `json:"model"`
	Priority    int         `json:"priority"`
	Config      RunConfig   `json:"config"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

func (br *BatchRequest) Validate() error {
	if len(br.TaskSpecs) == 0 {
		return fmt.Errorf("batch has no test cases")
	}
	if br.Model == "" {
		return fmt.Errorf("batch has no model selector")
	}
	if br.TemplateID == 0 {
		return fmt.Errorf("batch has no template")
	}
	for _, ts := range br.TaskSpecs {
		if ts.TestCaseID == 0 {
			return fmt.Errorf("task spec with empty test case id")
		}
	}
	return nil
}
