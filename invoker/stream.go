package invoker

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/promptbench/promptbench/config"

	es "github.com/iandyh/eventsource"
	log "github.com/sirupsen/logrus"
)

// StreamingInvoker consumes the model service's server sent event stream and
// concatenates the token chunks into the final output. Some model services
// only expose the streaming endpoint, so this is not just a latency play.
type StreamingInvoker struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

func NewStreamingInvoker(c *config.PromptbenchConfig) *StreamingInvoker {
	ms := c.ModelService
	return &StreamingInvoker{
		endpoint:   ms.Url,
		token:      ms.Token,
		httpClient: &http.Client{},
	}
}

func (si *StreamingInvoker) Invoke(ctx context.Context, prompt, modelName string) (string, error) {
	base := HTTPInvoker{endpoint: si.endpoint, token: si.token}
	req, err := base.makeRequest(ctx, prompt, modelName)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req = req.WithContext(streamCtx)
	log.Printf("Subscribing to model stream at %s for model %s", si.endpoint, modelName)
	stream, err := es.SubscribeWith("", si.httpClient, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-stream.Events:
			if !ok {
				return sb.String(), nil
			}
			if ev.Event() == "done" {
				return sb.String(), nil
			}
			sb.WriteString(ev.Data())
		case err, ok := <-stream.Errors:
			if !ok {
				continue
			}
			log.Errorf("Model stream error: %v", err)
			// eventsource retries by itself, give it a moment before we
			// decide the stream is gone for good
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}
