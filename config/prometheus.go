package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Average task duration hides the tail end where the model is slow to answer,
	// so we keep percentile summaries per batch.
	TaskDurationSummary = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  "promptbench",
		Name:       "task_duration_ms",
		Help:       "Percentile duration of executed test cases",
		Objectives: map[float64]float64{0.9: 0.01, 0.99: 0.001},
	}, []string{"batch_id", "model"})

	// Every terminal task outcome gets counted here. Passed and Failed are
	// different buckets, so are Errored and Cancelled.
	TaskStatusCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptbench",
		Name:      "task_status_counter",
		Help:      "stores count of terminal task outcomes grouped by status",
	}, []string{"batch_id", "model", "status"})

	RunningTasksGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "promptbench",
		Name:      "running_tasks_gauge",
		Help:      "Current number of tasks in Running state across all batches",
	})

	QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "promptbench",
		Name:      "queue_depth_gauge",
		Help:      "Current number of batches waiting in the execution queue",
	})

	RecommendedConcurrencyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "promptbench",
		Name:      "recommended_concurrency_gauge",
		Help:      "Concurrency level currently recommended by the resource monitor",
	})

	CpuGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "promptbench",
		Name:      "cpu_gauge",
		Help:      "CPU utilization sampled from the cgroup",
	})

	MemGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "promptbench",
		Name:      "mem_gauge",
		Help:      "Memory utilization sampled from the cgroup",
	})
)
