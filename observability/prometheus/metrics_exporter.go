package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-exec-controller/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
//
// Task-level metrics are labelled by executor (an event loop or the blocking
// pool); execution-level metrics are labelled by the execution's home loop.
type MetricsExporter struct {
	taskDurationSeconds      *prom.HistogramVec
	segmentDurationSeconds   *prom.HistogramVec
	executionDurationSeconds *prom.HistogramVec
	taskPanicTotal           *prom.CounterVec
	taskRejectedTotal        *prom.CounterVec
	queueDepth               *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "execctl"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	taskDurationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Raw task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"executor", "priority"})
	segmentDurationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "segment_duration_seconds",
		Help:      "Execution segment duration in seconds, by segment kind.",
		Buckets:   buckets,
	}, []string{"loop", "kind"})
	executionDurationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "execution_duration_seconds",
		Help:      "Whole-execution duration in seconds, from start to completion.",
		Buckets:   buckets,
	}, []string{"loop", "result"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"executor"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks and forks.",
	}, []string{"executor", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"executor"})

	var err error
	if taskDurationVec, err = registerCollector(reg, taskDurationVec); err != nil {
		return nil, err
	}
	if segmentDurationVec, err = registerCollector(reg, segmentDurationVec); err != nil {
		return nil, err
	}
	if executionDurationVec, err = registerCollector(reg, executionDurationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds:      taskDurationVec,
		segmentDurationSeconds:   segmentDurationVec,
		executionDurationSeconds: executionDurationVec,
		taskPanicTotal:           panicVec,
		taskRejectedTotal:        rejectedVec,
		queueDepth:               queueDepthVec,
	}, nil
}

// RecordTaskDuration records raw task execution duration.
func (m *MetricsExporter) RecordTaskDuration(name string, priority core.TaskPriority, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(name, "unknown"), priorityLabel(priority)).Observe(duration.Seconds())
}

// RecordSegmentDuration records execution segment duration by segment kind.
func (m *MetricsExporter) RecordSegmentDuration(name string, kind core.SegmentKind, duration time.Duration) {
	if m == nil {
		return
	}
	m.segmentDurationSeconds.WithLabelValues(normalizeLabel(name, "unknown"), kind.String()).Observe(duration.Seconds())
}

// RecordExecutionCompleted records a finished execution and its outcome.
func (m *MetricsExporter) RecordExecutionCompleted(name string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	m.executionDurationSeconds.WithLabelValues(normalizeLabel(name, "unknown"), result).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(name string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(name, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(name string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(name, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(name string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(name, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func priorityLabel(priority core.TaskPriority) string {
	switch priority {
	case core.TaskPriorityUserBlocking:
		return "user_blocking"
	case core.TaskPriorityUserVisible:
		return "user_visible"
	case core.TaskPriorityBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
