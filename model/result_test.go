package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBatchResultAllPassed(t *testing.T) {
	tasks := []*Task{
		{TestCaseID: 1, Status: TaskPassed},
		{TestCaseID: 2, Status: TaskPassed},
		{TestCaseID: 3, Status: TaskPassed},
	}
	br := NewBatchResult("b1", BatchCompleted, tasks, 1200)
	assert.Equal(t, 3, br.TotalTasks)
	assert.Equal(t, 3, br.PassedTasks)
	assert.Equal(t, 0, br.FailedTasks)
	assert.True(t, br.OverallPassed)
	assert.Equal(t, int64(1200), br.TotalDurationMs)
}

func TestNewBatchResultCountsCancelledAsFailed(t *testing.T) {
	tasks := []*Task{
		{TestCaseID: 1, Status: TaskPassed},
		{TestCaseID: 2, Status: TaskFailed},
		{TestCaseID: 3, Status: TaskCancelled},
		{TestCaseID: 4, Status: TaskErrored},
	}
	br := NewBatchResult("b1", BatchFailed, tasks, 500)
	assert.Equal(t, 1, br.PassedTasks)
	assert.Equal(t, 3, br.FailedTasks)
	assert.Equal(t, br.TotalTasks, br.PassedTasks+br.FailedTasks)
	assert.False(t, br.OverallPassed)
}

func TestNewBatchResultCancelledBatchNeverPasses(t *testing.T) {
	tasks := []*Task{{TestCaseID: 1, Status: TaskPassed}}
	br := NewBatchResult("b1", BatchCancelled, tasks, 100)
	assert.Equal(t, 0, br.FailedTasks)
	assert.False(t, br.OverallPassed)
}
