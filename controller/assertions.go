package controller

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/promptbench/promptbench/model"
)

// DefaultAssertionEngine checks model output against the assertion list of a
// test case. Unknown assertion types are rejected at submission time, but a
// row written before a type was retired could still reach here, so they
// produce a failed result instead of a panic.
type DefaultAssertionEngine struct{}

func (DefaultAssertionEngine) Validate(output string, assertions []*model.Assertion) []*model.AssertionResult {
	results := make([]*model.AssertionResult, len(assertions))
	for i, a := range assertions {
		r := &model.AssertionResult{Assertion: a}
		switch a.Type {
		case "equals":
			r.Passed = output == a.Expected
		case "contains":
			r.Passed = strings.Contains(output, a.Expected)
		case "not_contains":
			r.Passed = !strings.Contains(output, a.Expected)
		case "starts_with":
			r.Passed = strings.HasPrefix(output, a.Expected)
		case "regex":
			re, err := regexp.Compile(a.Expected)
			if err != nil {
				r.Error = fmt.Sprintf("invalid regex %q: %v", a.Expected, err)
			} else {
				r.Passed = re.MatchString(output)
			}
		default:
			r.Error = fmt.Sprintf("unknown assertion type %q", a.Type)
		}
		results[i] = r
	}
	return results
}
