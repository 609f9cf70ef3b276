package model

// SuiteDocument is the YAML document users upload to submit a whole suite as
// one batch. It mirrors BatchRequest minus the generated fields.
type SuiteDocument struct {
	Name       string      `yaml:"name"`
	TemplateID int64       `yaml:"templateid"`
	Model      string      `yaml:"model"`
	Priority   int         `yaml:"priority"`
	Config     RunConfig   `yaml:"config"`
	Tests      []*TaskSpec `yaml:"tests"`
}

type SuiteWrapper struct {
	Content *SuiteDocument `yaml:"test-suite"`
}

// ToBatchRequest turns an uploaded suite into a submittable batch request.
// The ID and submission time are filled in by the coordinator.
func (sd *SuiteDocument) ToBatchRequest() *BatchRequest {
	return &BatchRequest{
		TemplateID: sd.TemplateID,
		TaskSpecs:  sd.Tests,
		Model:      sd.Model,
		Priority:   sd.Priority,
		Config:     sd.Config,
	}
}
