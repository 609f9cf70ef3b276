package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchStatusTransitions(t *testing.T) {
	assert.True(t, BatchQueued.CanTransition(BatchRunning))
	assert.True(t, BatchQueued.CanTransition(BatchCancelled))
	assert.False(t, BatchQueued.CanTransition(BatchCompleted))
	assert.False(t, BatchQueued.CanTransition(BatchFailed))

	assert.True(t, BatchRunning.CanTransition(BatchCompleted))
	assert.True(t, BatchRunning.CanTransition(BatchFailed))
	assert.True(t, BatchRunning.CanTransition(BatchCancelled))
	assert.False(t, BatchRunning.CanTransition(BatchQueued))

	// terminal states never move again
	for _, terminal := range []BatchStatus{BatchCompleted, BatchFailed, BatchCancelled} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []BatchStatus{BatchQueued, BatchRunning, BatchCompleted, BatchFailed, BatchCancelled} {
			assert.False(t, terminal.CanTransition(next))
		}
	}
}

func TestBatchRequestValidate(t *testing.T) {
	valid := &BatchRequest{
		TemplateID: 1,
		Model:      "gpt-test",
		TaskSpecs:  []*TaskSpec{{TestCaseID: 1}},
	}
	assert.Nil(t, valid.Validate())

	empty := &BatchRequest{TemplateID: 1, Model: "gpt-test"}
	assert.NotNil(t, empty.Validate())

	noModel := &BatchRequest{TemplateID: 1, TaskSpecs: []*TaskSpec{{TestCaseID: 1}}}
	assert.NotNil(t, noModel.Validate())

	noTemplate := &BatchRequest{Model: "gpt-test", TaskSpecs: []*TaskSpec{{TestCaseID: 1}}}
	assert.NotNil(t, noTemplate.Validate())

	badSpec := &BatchRequest{TemplateID: 1, Model: "gpt-test", TaskSpecs: []*TaskSpec{{}}}
	assert.NotNil(t, badSpec.Validate())
}

func TestNewBatchID(t *testing.T) {
	a := NewBatchID()
	b := NewBatchID()
	assert.Equal(t, 16, len(a))
	assert.NotEqual(t, a, b)
}
