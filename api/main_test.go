package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/promptbench/promptbench/controller"
	"github.com/promptbench/promptbench/model"
	"github.com/promptbench/promptbench/monitor"
	"github.com/stretchr/testify/assert"
)

type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, _, _ string) (string, error) {
	return "ok", nil
}

type stubTemplates struct{}

func (stubTemplates) GetTemplate(ID int64) (*model.PromptTemplate, error) {
	if ID != 1 {
		return nil, fmt.Errorf("no such template")
	}
	return &model.PromptTemplate{ID: 1, Content: "say {{.word}}"}, nil
}

func (stubTemplates) GetTestCase(ID int64) (*model.TestCase, error) {
	if ID != 1 {
		return nil, fmt.Errorf("no such test case")
	}
	return &model.TestCase{
		ID: 1, TemplateID: 1,
		Bindings:   map[string]string{"word": "hello"},
		Assertions: []*model.Assertion{{Type: "equals", Expected: "ok"}},
	}, nil
}

type stubStore struct{}

func (stubStore) Persist(*model.BatchResult) error           { return nil }
func (stubStore) PersistTaskOutcome(*model.Task) error       { return nil }
func (stubStore) GetResult(string) (*model.BatchResult, error) { return nil, fmt.Errorf("not stored") }

func newTestRouter() (*httprouter.Router, *controller.Controller) {
	rm := monitor.New(monitor.Options{SampleInterval: time.Hour, MaxConcurrency: 4})
	ctr := controller.NewController(controller.SchedulerOptions{
		QueueCeiling:   10,
		MaxConcurrency: 4,
		TaskTimeout:    time.Second,
	}, rm, controller.Collaborators{
		Invoker:    stubInvoker{},
		Assertions: controller.DefaultAssertionEngine{},
		Templates:  stubTemplates{},
		Store:      stubStore{},
	})
	s := NewAPIServer(ctr)
	r := httprouter.New()
	for _, route := range s.InitRoutes() {
		r.Handle(route.Method, route.Path, route.HandlerFunc)
	}
	return r, ctr
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateBatchRejectsBadJSON(t *testing.T) {
	r, _ := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/batches", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBatchUnknownTemplate(t *testing.T) {
	r, _ := newTestRouter()
	body := `{"template_id": 42, "model": "gpt-test", "task_specs": [{"test_case_id": 1}]}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/batches", strings.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBatchAndQueryLifecycle(t *testing.T) {
	r, ctr := newTestRouter()
	ctr.Monitor.Pause()

	body := `{"template_id": 1, "model": "gpt-test", "task_specs": [{"test_case_id": 1}]}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/batches", strings.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("submit failed with %d: %s", w.Code, w.Body.String())
	}
	var resp SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	assert.NotEmpty(t, resp.BatchID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/batches/"+resp.BatchID+"/progress", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var record model.ProgressRecord
	if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, model.BatchQueued, record.Status)
	assert.Equal(t, 1, record.TotalTasks)

	// results are refused while the batch is still pending
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/batches/"+resp.BatchID+"/result", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/batches/"+resp.BatchID+"/cancel", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/batches/"+resp.BatchID+"/result", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var result model.BatchResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, model.BatchCancelled, result.Status)
}

func TestProgressUnknownBatch(t *testing.T) {
	r, _ := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/batches/nope/progress", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueStatsEndpoint(t *testing.T) {
	r, _ := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/queue/stats", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var stats controller.QueueStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, stats.Depth)
}
