package model

import (
	"encoding/json"

	"github.com/guregu/null"
	"github.com/promptbench/promptbench/config"
)

// ResultStore is the durability collaborator. Persist is called exactly once
// per batch at finalize; PersistTaskOutcome keeps partial progress across
// process restarts.
type ResultStore interface {
	Persist(br *BatchResult) error
	PersistTaskOutcome(t *Task) error
	GetResult(batchID string) (*BatchResult, error)
}

// MySQLResultStore persists batch and task outcomes to MySQL.
type MySQLResultStore struct{}

func (s MySQLResultStore) Persist(br *BatchResult) error {
	db := config.SC.DBC
	q, err := db.Prepare("insert batch_result set batch_id=?,status=?,total_tasks=?,passed_tasks=?,failed_tasks=?,overall_passed=?,total_duration_ms=?,diagnostic=?")
	if err != nil {
		return err
	}
	defer q.Close()
	overallPassed := 0
	if br.OverallPassed {
		overallPassed = 1
	}
	if _, err := q.Exec(br.BatchID, string(br.Status), br.TotalTasks, br.PassedTasks,
		br.FailedTasks, overallPassed, br.TotalDurationMs, br.Diagnostic); err != nil {
		return err
	}
	for _, t := range br.TaskResults {
		if err := s.PersistTaskOutcome(t); err != nil {
			return err
		}
	}
	return nil
}

func (s MySQLResultStore) PersistTaskOutcome(t *Task) error {
	db := config.SC.DBC
	rawAssertions, err := json.Marshal(t.AssertionResults)
	if err != nil {
		return err
	}
	// replace keeps the call idempotent when a retried task persists twice
	q, err := db.Prepare("replace task_result set batch_id=?,test_case_id=?,attempt=?,status=?,output=?,assertion_results=?,duration_ms=?,error=?,started_at=?")
	if err != nil {
		return err
	}
	defer q.Close()
	_, err = q.Exec(t.BatchID, t.TestCaseID, t.Attempt, string(t.Status), t.Output,
		rawAssertions, t.DurationMs, t.Error, t.StartedAt.Format(MySQLFormat))
	return err
}

func (s MySQLResultStore) GetResult(batchID string) (*BatchResult, error) {
	db := config.SC.DBC
	q, err := db.Prepare("select batch_id, status, total_tasks, passed_tasks, failed_tasks, overall_passed, total_duration_ms, diagnostic from batch_result where batch_id=?")
	if err != nil {
		return nil, err
	}
	defer q.Close()

	br := new(BatchResult)
	var status string
	var overallPassed int
	var diagnostic null.String
	err = q.QueryRow(batchID).Scan(&br.BatchID, &status, &br.TotalTasks, &br.PassedTasks,
		&br.FailedTasks, &overallPassed, &br.TotalDurationMs, &diagnostic)
	if err != nil {
		return nil, &DBError{Err: err, Message: "batch result not found"}
	}
	br.Status = BatchStatus(status)
	br.OverallPassed = overallPassed == 1
	br.Diagnostic = diagnostic.String

	tasks, err := s.getTaskOutcomes(batchID)
	if err != nil {
		return nil, err
	}
	br.TaskResults = tasks
	return br, nil
}

func (s MySQLResultStore) getTaskOutcomes(batchID string) ([]*Task, error) {
	db := config.SC.DBC
	q, err := db.Prepare("select test_case_id, attempt, status, output, assertion_results, duration_ms, error, started_at from task_result where batch_id=? order by id")
	if err != nil {
		return nil, err
	}
	defer q.Close()
	rows, err := q.Query(batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	r := []*Task{}
	for rows.Next() {
		t := new(Task)
		t.BatchID = batchID
		var status string
		var output, taskErr null.String
		var rawAssertions []byte
		if err := rows.Scan(&t.TestCaseID, &t.Attempt, &status, &output,
			&rawAssertions, &t.DurationMs, &taskErr, &t.StartedAt); err != nil {
			return nil, err
		}
		t.Status = TaskStatus(status)
		t.Output = output.String
		t.Error = taskErr.String
		if len(rawAssertions) > 0 {
			if err := json.Unmarshal(rawAssertions, &t.AssertionResults); err != nil {
				return nil, err
			}
		}
		r = append(r, t)
	}
	return r, rows.Err()
}
