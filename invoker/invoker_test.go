package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptbench/promptbench/config"
	"github.com/stretchr/testify/assert"
)

func newTestInvoker(url string) *HTTPInvoker {
	return NewHTTPInvoker(&config.PromptbenchConfig{
		ModelService: &config.ModelServiceConfig{Url: url, Token: "secret", TimeoutSec: 5},
	})
}

func TestHTTPInvoker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, "say hello", req.Prompt)
		json.NewEncoder(w).Encode(completionResponse{Output: "hello"})
	}))
	defer server.Close()

	out, err := newTestInvoker(server.URL).Invoke(context.Background(), "say hello", "gpt-test")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "hello", out)
}

func TestHTTPInvokerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestInvoker(server.URL).Invoke(context.Background(), "p", "m")
	assert.NotNil(t, err)
}

func TestHTTPInvokerModelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionResponse{Error: "context length exceeded"})
	}))
	defer server.Close()

	_, err := newTestInvoker(server.URL).Invoke(context.Background(), "p", "m")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestHTTPInvokerHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newTestInvoker(server.URL).Invoke(ctx, "p", "m")
	assert.NotNil(t, err)
}
