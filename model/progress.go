package model

import (
	"time"

	"github.com/guregu/null"
)

// ProgressRecord is the live view of a batch. Mutated only by the progress
// tracker under its per-batch lock; everybody else reads copies.
type ProgressRecord struct {
	BatchID              string      `json:"batch_id"`
	TotalTasks           int         `json:"total_tasks"`
	CompletedTasks       int         `json:"completed_tasks"`
	FailedTasks          int         `json:"failed_tasks"`
	CurrentTask          null.String `json:"current_task"`
	PercentComplete      float64     `json:"percent_complete"`
	EstimatedRemainingMs null.Int    `json:"estimated_remaining_ms"`
	Status               BatchStatus `json:"status"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// PendingTasks derives the third leg of the counter invariant:
// completed + failed + pending == total.
func (pr *ProgressRecord) PendingTasks() int {
	return pr.TotalTasks - pr.CompletedTasks - pr.FailedTasks
}
