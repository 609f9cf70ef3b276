package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/promptbench/promptbench/config"
)

var knownAssertionTypes = []string{"equals", "contains", "not_contains", "regex", "starts_with"}

// PromptTemplate holds the template text the test cases are rendered against.
// Placeholders use the text/template syntax, e.g. {{.city}}.
type PromptTemplate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Content     string    `json:"content"`
	CreatedTime time.Time `json:"created_time"`
}

// Render substitutes the input bindings into the template content.
// Unknown placeholders are an error so a broken test case fails loudly
// instead of sending a half-rendered prompt to the model.
func (pt *PromptTemplate) Render(bindings map[string]string) (string, error) {
	tmpl, err := template.New(fmt.Sprintf("template-%d", pt.ID)).Option("missingkey=error").Parse(pt.Content)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, bindings); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TestCase is one test case belonging to a template. Bindings and assertions
// are stored as JSON columns.
type TestCase struct {
	ID          int64             `json:"id"`
	TemplateID  int64             `json:"template_id"`
	Name        string            `json:"name"`
	Bindings    map[string]string `json:"bindings"`
	Assertions  []*Assertion      `json:"assertions"`
	CreatedTime time.Time         `json:"created_time"`
}

func (tc *TestCase) ValidateAssertions() error {
	for _, a := range tc.Assertions {
		if !inArray(knownAssertionTypes, a.Type) {
			return fmt.Errorf("unknown assertion type %s", a.Type)
		}
	}
	return nil
}

func GetTemplate(ID int64) (*PromptTemplate, error) {
	db := config.SC.DBC
	q, err := db.Prepare("select id, name, content, created_time from prompt_template where id=?")
	if err != nil {
		return nil, err
	}
	defer q.Close()

	pt := new(PromptTemplate)
	err = q.QueryRow(ID).Scan(&pt.ID, &pt.Name, &pt.Content, &pt.CreatedTime)
	if err != nil {
		return nil, &DBError{Err: err, Message: "template not found"}
	}
	return pt, nil
}

func GetTestCase(ID int64) (*TestCase, error) {
	db := config.SC.DBC
	q, err := db.Prepare("select id, template_id, name, bindings, assertions, created_time from test_case where id=?")
	if err != nil {
		return nil, err
	}
	defer q.Close()

	tc := new(TestCase)
	var rawBindings, rawAssertions []byte
	err = q.QueryRow(ID).Scan(&tc.ID, &tc.TemplateID, &tc.Name, &rawBindings, &rawAssertions, &tc.CreatedTime)
	if err != nil {
		return nil, &DBError{Err: err, Message: "test case not found"}
	}
	if err := json.Unmarshal(rawBindings, &tc.Bindings); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawAssertions, &tc.Assertions); err != nil {
		return nil, err
	}
	return tc, nil
}

// TemplateStore is what the coordinator consults at submit time to check the
// referenced template and test cases exist, and what the worker pool reads
// when rendering prompts.
type TemplateStore interface {
	GetTemplate(ID int64) (*PromptTemplate, error)
	GetTestCase(ID int64) (*TestCase, error)
}

// DBTemplateStore serves templates from MySQL.
type DBTemplateStore struct{}

func (s DBTemplateStore) GetTemplate(ID int64) (*PromptTemplate, error) {
	return GetTemplate(ID)
}

func (s DBTemplateStore) GetTestCase(ID int64) (*TestCase, error) {
	return GetTestCase(ID)
}
