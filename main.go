package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/promptbench/promptbench/api"
	"github.com/promptbench/promptbench/config"
	"github.com/promptbench/promptbench/controller"
	"github.com/promptbench/promptbench/invoker"
	"github.com/promptbench/promptbench/model"
	"github.com/promptbench/promptbench/monitor"
	"github.com/promptbench/promptbench/object_storage"
	log "github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"
)

func makeInvoker(c *config.PromptbenchConfig) controller.ModelInvoker {
	if c.ModelService == nil {
		log.Fatal("model_service config is required")
	}
	if c.ModelService.Streaming {
		return invoker.NewStreamingInvoker(c)
	}
	return invoker.NewHTTPInvoker(c)
}

func main() {
	sc := config.SC.SchedulerConfig
	object_storage.Setup(config.SC)

	rm := monitor.New(monitor.Options{
		SampleInterval: time.Duration(sc.SampleIntervalSec) * time.Second,
		HighWatermark:  sc.HighWatermark,
		MaxConcurrency: sc.MaxConcurrency,
	})
	ctr := controller.NewController(controller.SchedulerOptions{
		QueueCeiling:       sc.QueueCeiling,
		MaxConcurrency:     sc.MaxConcurrency,
		TaskTimeout:        time.Duration(sc.TaskTimeoutSec) * time.Second,
		DrainTimeout:       time.Duration(sc.DrainTimeoutSec) * time.Second,
		ProgressBufferSize: sc.ProgressBufferSize,
	}, rm, controller.Collaborators{
		Invoker:    makeInvoker(config.SC),
		Assertions: controller.DefaultAssertionEngine{},
		Templates:  model.DBTemplateStore{},
		Store:      model.MySQLResultStore{},
		Artifacts:  object_storage.Client.Storage,
	})
	ctr.StartRunning()

	apiServer := api.NewAPIServer(ctr)
	routes := apiServer.InitRoutes()
	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.Method, route.Path, route.HandlerFunc)
	}
	r.Handler("GET", "/metrics", promhttp.Handler())

	server := &http.Server{Addr: fmt.Sprintf(":%d", 8080), Handler: r}
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		log.Print("Shutting down, draining running batches")
		ctr.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()
	log.Fatal(server.ListenAndServe())
}
