package controller

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/promptbench/promptbench/model"
	"github.com/promptbench/promptbench/object_storage"
	log "github.com/sirupsen/logrus"
)

// ModelInvoker is the model-inference collaborator. The per-task timeout is
// carried on the context.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string, modelName string) (string, error)
}

// AssertionEngine validates raw model output against the test case assertions.
type AssertionEngine interface {
	Validate(output string, assertions []*model.Assertion) []*model.AssertionResult
}

// taskRunner executes one test case attempt end to end: render the prompt,
// call the model, validate the output.
type taskRunner struct {
	invoker     ModelInvoker
	assertions  AssertionEngine
	templates   model.TemplateStore
	artifacts   object_storage.StorageInterface
	taskTimeout time.Duration
}

func (tr *taskRunner) run(ctx context.Context, batch *model.BatchRequest, spec *model.TaskSpec, attempt int) *model.Task {
	task := &model.Task{
		BatchID:    batch.ID,
		TestCaseID: spec.TestCaseID,
		Attempt:    attempt,
		StartedAt:  time.Now(),
		Status:     model.TaskRunning,
	}
	tc, err := tr.templates.GetTestCase(spec.TestCaseID)
	if err != nil {
		return tr.errored(task, err)
	}
	tmpl, err := tr.templates.GetTemplate(batch.TemplateID)
	if err != nil {
		return tr.errored(task, err)
	}
	bindings := make(map[string]string, len(tc.Bindings)+len(spec.Bindings))
	for k, v := range tc.Bindings {
		bindings[k] = v
	}
	// per-batch overrides win over the bindings stored with the test case
	for k, v := range spec.Bindings {
		bindings[k] = v
	}
	prompt, err := tmpl.Render(bindings)
	if err != nil {
		return tr.errored(task, err)
	}

	timeout := tr.taskTimeout
	if batch.Config.TaskTimeoutSec > 0 {
		timeout = time.Duration(batch.Config.TaskTimeoutSec) * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	output, err := tr.invoker.Invoke(tctx, prompt, batch.Model)
	task.DurationMs = time.Since(task.StartedAt).Milliseconds()
	if err != nil {
		if ctx.Err() == context.Canceled {
			task.Status = model.TaskCancelled
			task.Error = ctx.Err().Error()
			return task
		}
		return tr.errored(task, err)
	}
	task.Output = output
	tr.uploadArtifact(task)

	results := tr.assertions.Validate(output, tc.Assertions)
	task.AssertionResults = results
	task.Status = model.TaskPassed
	for _, r := range results {
		if !r.Passed {
			task.Status = model.TaskFailed
			break
		}
	}
	return task
}

func (tr *taskRunner) errored(task *model.Task, err error) *model.Task {
	task.Status = model.TaskErrored
	task.Error = err.Error()
	if task.DurationMs == 0 {
		task.DurationMs = time.Since(task.StartedAt).Milliseconds()
	}
	return task
}

// uploadArtifact stores the raw model output when artifact storage is
// configured. Failure is logged, never fatal to the task.
func (tr *taskRunner) uploadArtifact(task *model.Task) {
	if tr.artifacts == nil || task.Output == "" {
		return
	}
	filename := fmt.Sprintf("batches/%s/%d_%d.txt", task.BatchID, task.TestCaseID, task.Attempt)
	content := ioutil.NopCloser(bytes.NewBufferString(task.Output))
	if err := tr.artifacts.Upload(filename, content); err != nil {
		log.Errorf("artifact upload failed for %s: %v", filename, err)
	}
}
