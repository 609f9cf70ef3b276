package model

import "time"

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskPassed    TaskStatus = "passed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskErrored   TaskStatus = "errored"
)

func (ts TaskStatus) IsTerminal() bool {
	switch ts {
	case TaskPassed, TaskFailed, TaskCancelled, TaskErrored:
		return true
	}
	return false
}

// Assertion is one expectation against the raw model output. Matching itself
// is done by the assertion engine collaborator.
type Assertion struct {
	Type     string `json:"type" yaml:"type"`
	Expected string `json:"expected" yaml:"expected"`
}

type AssertionResult struct {
	Assertion *Assertion `json:"assertion"`
	Passed    bool       `json:"passed"`
	Error     string     `json:"error,omitempty"`
}

// Task is the execution of a single test case within a batch. One Task value
// exists per attempt; retries bump Attempt and reset the volatile fields.
type Task struct {
	BatchID          string             `json:"batch_id"`
	TestCaseID       int64              `json:"test_case_id"`
	Attempt          int                `json:"attempt"`
	StartedAt        time.Time          `json:"started_at"`
	Status           TaskStatus         `json:"status"`
	Output           string             `json:"output,omitempty"`
	AssertionResults []*AssertionResult `json:"assertion_results,omitempty"`
	DurationMs       int64              `json:"duration_ms"`
	Error            string             `json:"error,omitempty"`
}

// Passed is true only when the model answered and every assertion held.
func (t *Task) Passed() bool {
	return t.Status == TaskPassed
}

// CountsAsFailed covers every terminal, non-passed state. Cancelled keeps its
// own status but is counted under the failed bucket in aggregates.
func (t *Task) CountsAsFailed() bool {
	return t.Status.IsTerminal() && t.Status != TaskPassed
}
