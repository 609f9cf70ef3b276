package model

// BatchResult is the terminal aggregate for a batch. Created once at finalize,
// never mutated afterwards.
type BatchResult struct {
	BatchID         string      `json:"batch_id"`
	Status          BatchStatus `json:"status"`
	TotalTasks      int         `json:"total_tasks"`
	PassedTasks     int         `json:"passed_tasks"`
	FailedTasks     int         `json:"failed_tasks"`
	TaskResults     []*Task     `json:"task_results"`
	OverallPassed   bool        `json:"overall_passed"`
	TotalDurationMs int64       `json:"total_duration_ms"`
	Diagnostic      string      `json:"diagnostic,omitempty"`
}

// NewBatchResult aggregates the terminal task outcomes in submission order.
// Tasks must all be terminal by the time this is called.
func NewBatchResult(batchID string, status BatchStatus, tasks []*Task, totalDurationMs int64) *BatchResult {
	br := &BatchResult{
		BatchID:         batchID,
		Status:          status,
		TotalTasks:      len(tasks),
		TaskResults:     tasks,
		TotalDurationMs: totalDurationMs,
	}
	for _, t := range tasks {
		if t.Passed() {
			br.PassedTasks++
		} else {
			br.FailedTasks++
		}
	}
	br.OverallPassed = br.FailedTasks == 0 && status == BatchCompleted
	return br
}
