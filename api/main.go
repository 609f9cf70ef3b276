package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/promptbench/promptbench/controller"
	"github.com/promptbench/promptbench/model"
	"github.com/promptbench/promptbench/object_storage"
	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

type PromptbenchAPI struct {
	ctr *controller.Controller
}

func NewAPIServer(ctr *controller.Controller) *PromptbenchAPI {
	return &PromptbenchAPI{
		ctr: ctr,
	}
}

type JSONMessage struct {
	Message string `json:"message"`
}

type SubmitResponse struct {
	BatchID string `json:"batch_id"`
}

func (s *PromptbenchAPI) jsonise(w http.ResponseWriter, status int, content interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(content)
}

func (s *PromptbenchAPI) makeRespMessage(message string) *JSONMessage {
	return &JSONMessage{
		Message: message,
	}
}

func (s *PromptbenchAPI) makeFailMessage(w http.ResponseWriter, message string, statusCode int) {
	messageObj := s.makeRespMessage(message)
	s.jsonise(w, statusCode, messageObj)
}

// handles errors from other packages, like model
// unhandled errors will be returned
func (s *PromptbenchAPI) handleErrorsFromExt(w http.ResponseWriter, err error) error {
	var dbe *model.DBError
	if errors.As(err, &dbe) {
		s.makeFailMessage(w, dbe.Error(), http.StatusNotFound)
		return nil
	}
	return err
}

func (s *PromptbenchAPI) handleErrors(w http.ResponseWriter, err error) {
	unhandledError := s.handleErrorsFromExt(w, err)
	if unhandledError != nil {
		switch {
		case errors.Is(err, invalidRequestErr):
			s.makeFailMessage(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, controller.InvalidBatchError):
			s.makeFailMessage(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, controller.TemplateNotFoundError):
			s.makeFailMessage(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, controller.NotFoundError):
			s.makeFailMessage(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, controller.QueueFullError):
			s.makeFailMessage(w, err.Error(), http.StatusTooManyRequests)
		case errors.Is(err, controller.AlreadyTerminalError):
			s.makeFailMessage(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, controller.NotYetCompleteError):
			s.makeFailMessage(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("api error: %v", err)
			s.makeFailMessage(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func (s *PromptbenchAPI) batchCreateHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req := new(model.BatchRequest)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		s.handleErrors(w, makeInvalidRequestError(err.Error()))
		return
	}
	batchID, err := s.ctr.Submit(req)
	if err != nil {
		s.handleErrors(w, err)
		return
	}
	s.jsonise(w, http.StatusCreated, &SubmitResponse{BatchID: batchID})
}

func (s *PromptbenchAPI) suiteUploadHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	e := new(model.SuiteWrapper)
	r.ParseMultipartForm(1 << 20) //parse 1 MB of data
	file, _, err := r.FormFile("suiteYAML")
	if err != nil {
		s.handleErrors(w, makeInvalidResourceError("file"))
		return
	}
	raw, err := io.ReadAll(file)
	if err != nil {
		s.handleErrors(w, makeInvalidRequestError("invalid file"))
		return
	}
	if err := yaml.Unmarshal(raw, e); err != nil {
		s.handleErrors(w, makeInvalidRequestError(err.Error()))
		return
	}
	if e.Content == nil {
		s.handleErrors(w, makeInvalidRequestError("missing test-suite document"))
		return
	}
	batchID, err := s.ctr.Submit(e.Content.ToBatchRequest())
	if err != nil {
		s.handleErrors(w, err)
		return
	}
	s.jsonise(w, http.StatusCreated, &SubmitResponse{BatchID: batchID})
}

func (s *PromptbenchAPI) progressGetHandler(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	record, err := s.ctr.GetProgress(params.ByName("batch_id"))
	if err != nil {
		s.handleErrors(w, err)
		return
	}
	s.jsonise(w, http.StatusOK, record)
}

func (s *PromptbenchAPI) batchCancelHandler(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "cancelled by user"
	}
	if err := s.ctr.Cancel(params.ByName("batch_id"), reason); err != nil {
		s.handleErrors(w, err)
		return
	}
	s.jsonise(w, http.StatusOK, s.makeRespMessage("cancelling"))
}

func (s *PromptbenchAPI) resultGetHandler(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	result, err := s.ctr.GetResult(params.ByName("batch_id"))
	if err != nil {
		s.handleErrors(w, err)
		return
	}
	s.jsonise(w, http.StatusOK, result)
}

func (s *PromptbenchAPI) queueStatsHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.jsonise(w, http.StatusOK, s.ctr.QueueStats())
}

func (s *PromptbenchAPI) progressStreamHandler(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	batchID := params.ByName("batch_id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.makeFailMessage(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	subID, ch, err := s.ctr.SubscribeProgress(batchID)
	if err != nil {
		s.handleErrors(w, err)
		return
	}
	clientIP := retrieveClientIP(r)
	log.Printf("Progress stream %s opened by %s for batch %s", subID, clientIP, batchID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	go func() {
		<-r.Context().Done()
		s.ctr.UnsubscribeProgress(batchID, subID)
	}()
	for record := range ch {
		payload, err := json.Marshal(record)
		if err != nil {
			fmt.Fprintf(w, "data:%v\n\n", err)
		} else {
			fmt.Fprintf(w, "data:%s\n\n", payload)
		}
		flusher.Flush()
	}
}

func (s *PromptbenchAPI) artifactDownloadHandler(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	batchID := params.ByName("batch_id")
	name := params.ByName("name")
	filename := fmt.Sprintf("batches/%s/%s", batchID, name)

	data, err := object_storage.Client.Storage.Download(filename)
	if err != nil {
		var fnf object_storage.FileNotFound
		if errors.As(err, &fnf) {
			s.makeFailMessage(w, fnf.Error(), http.StatusNotFound)
			return
		}
		s.handleErrors(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("Attachment; filename=%s", name))
	w.Write(data)
}

func (s *PromptbenchAPI) healthHandler(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.jsonise(w, http.StatusOK, s.makeRespMessage("ok"))
}

type Route struct {
	Name        string
	Method      string
	Path        string
	HandlerFunc httprouter.Handle
}

type Routes []*Route

func (s *PromptbenchAPI) InitRoutes() Routes {
	routes := Routes{
		&Route{"create_batch", "POST", "/api/batches", s.batchCreateHandler},
		&Route{"upload_suite", "POST", "/api/batches/upload", s.suiteUploadHandler},
		&Route{"get_progress", "GET", "/api/batches/:batch_id/progress", s.progressGetHandler},
		&Route{"stream_progress", "GET", "/api/batches/:batch_id/stream", s.progressStreamHandler},
		&Route{"cancel_batch", "POST", "/api/batches/:batch_id/cancel", s.batchCancelHandler},
		&Route{"get_result", "GET", "/api/batches/:batch_id/result", s.resultGetHandler},
		&Route{"download_artifact", "GET", "/api/batches/:batch_id/artifacts/:name", s.artifactDownloadHandler},

		&Route{"queue_stats", "GET", "/api/queue/stats", s.queueStatsHandler},
		&Route{"health", "GET", "/api/health", s.healthHandler},
	}
	return routes
}
