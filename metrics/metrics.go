// Package metrics exports run and task outcomes in the Prometheus text
// format, written to a file for the node exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cxlmemsim/cxlbench/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cxlbench"

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry
	path     string

	TasksTotal   *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	RunPlanned   prometheus.Gauge
	RunAttempted prometheus.Gauge
	RunFailed    prometheus.Gauge
	RunAborted   prometheus.Gauge
	RunElapsed   prometheus.Gauge
	RunStarted   prometheus.Gauge
}

// New creates the collectors on a private registry. Flush writes them to
// path; an empty path disables writing.
func New(path string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		path:     path,
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total tasks executed by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Task execution duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"kind", "workload"},
		),
		RunPlanned: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_planned_tasks",
			Help:      "Number of tasks in the plan of the last run",
		}),
		RunAttempted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_attempted_tasks",
			Help:      "Number of tasks started by the last run",
		}),
		RunFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_failed_tasks",
			Help:      "Number of failed tasks of the last run",
		}),
		RunAborted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_aborted",
			Help:      "Whether the last run stopped before executing every task (1) or not (0)",
		}),
		RunElapsed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_elapsed_seconds",
			Help:      "Wall clock time of the last run in seconds",
		}),
		RunStarted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_start_time_seconds",
			Help:      "Unix time the last run started",
		}),
	}
}

// ObserveTask counts a finished task.
func (m *Metrics) ObserveTask(rec model.TaskRecord) {
	m.TasksTotal.WithLabelValues(string(rec.Kind), rec.Outcome).Inc()
	m.TaskDuration.WithLabelValues(string(rec.Kind), rec.Workload).Observe(rec.Duration.Seconds())
}

// ObserveRun records the final counters of a run.
func (m *Metrics) ObserveRun(s *model.RunSummary) {
	m.RunPlanned.Set(float64(s.Planned))
	m.RunAttempted.Set(float64(s.Attempted))
	m.RunFailed.Set(float64(s.Failed))
	m.RunElapsed.Set(s.Elapsed.Seconds())
	m.RunStarted.Set(float64(s.StartedAt.Unix()))
	if s.Aborted {
		m.RunAborted.Set(1)
	} else {
		m.RunAborted.Set(0)
	}
}

// Flush writes the registry to the metrics file.
func (m *Metrics) Flush() error {
	if m.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(m.path, m.registry)
}
