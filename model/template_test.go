package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateRender(t *testing.T) {
	pt := &PromptTemplate{ID: 1, Content: "Translate {{.word}} into {{.language}}"}
	out, err := pt.Render(map[string]string{"word": "hello", "language": "French"})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Translate hello into French", out)
}

func TestTemplateRenderMissingBinding(t *testing.T) {
	pt := &PromptTemplate{ID: 1, Content: "Translate {{.word}} into {{.language}}"}
	_, err := pt.Render(map[string]string{"word": "hello"})
	assert.NotNil(t, err)
}

func TestTemplateRenderBadSyntax(t *testing.T) {
	pt := &PromptTemplate{ID: 1, Content: "Translate {{.word"}
	_, err := pt.Render(map[string]string{"word": "hello"})
	assert.NotNil(t, err)
}

func TestValidateAssertions(t *testing.T) {
	tc := &TestCase{Assertions: []*Assertion{
		{Type: "equals", Expected: "x"},
		{Type: "contains", Expected: "x"},
		{Type: "not_contains", Expected: "x"},
		{Type: "regex", Expected: "^x$"},
		{Type: "starts_with", Expected: "x"},
	}}
	assert.Nil(t, tc.ValidateAssertions())

	tc.Assertions = append(tc.Assertions, &Assertion{Type: "sentiment", Expected: "positive"})
	assert.NotNil(t, tc.ValidateAssertions())
}
