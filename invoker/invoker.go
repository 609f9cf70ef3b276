package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/promptbench/promptbench/config"

	log "github.com/sirupsen/logrus"
)

// completionRequest is what gets posted to the model service.
type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// HTTPInvoker sends rendered prompts to the model service over plain HTTP.
type HTTPInvoker struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewHTTPInvoker(c *config.PromptbenchConfig) *HTTPInvoker {
	ms := c.ModelService
	timeout := time.Duration(ms.TimeoutSec) * time.Second
	if ms.TimeoutSec == 0 {
		timeout = 120 * time.Second
	}
	return &HTTPInvoker{
		endpoint:   ms.Url,
		token:      ms.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (hi *HTTPInvoker) makeRequest(ctx context.Context, prompt, modelName string) (*http.Request, error) {
	body, err := json.Marshal(completionRequest{Model: modelName, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", hi.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if hi.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", hi.token))
	}
	return req, nil
}

func (hi *HTTPInvoker) Invoke(ctx context.Context, prompt, modelName string) (string, error) {
	req, err := hi.makeRequest(ctx, prompt, modelName)
	if err != nil {
		return "", err
	}
	resp, err := hi.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		log.Errorf("Model service returned %d for model %s", resp.StatusCode, modelName)
		return "", fmt.Errorf("model service returned status %d: %s", resp.StatusCode, raw)
	}
	cr := new(completionResponse)
	if err := json.Unmarshal(raw, cr); err != nil {
		return "", err
	}
	if cr.Error != "" {
		return "", fmt.Errorf("model service error: %s", cr.Error)
	}
	return cr.Output, nil
}
