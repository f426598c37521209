package core

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

// TestPanicHandler is a mock panic handler for testing
type TestPanicHandler struct {
	mu            sync.Mutex
	calls         []PanicCall
	onPanicCalled func(ctx context.Context, name string, workerID int, panicInfo any, stackTrace []byte)
}

type PanicCall struct {
	Name      string
	WorkerID  int
	PanicInfo any
}

func NewTestPanicHandler() *TestPanicHandler {
	return &TestPanicHandler{
		calls: make([]PanicCall, 0),
	}
}

func (h *TestPanicHandler) HandlePanic(ctx context.Context, name string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls = append(h.calls, PanicCall{
		Name:      name,
		WorkerID:  workerID,
		PanicInfo: panicInfo,
	})

	if h.onPanicCalled != nil {
		h.onPanicCalled(ctx, name, workerID, panicInfo, stackTrace)
	}
}

func (h *TestPanicHandler) GetCalls() []PanicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *TestPanicHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called
	ctx := context.Background()
	handler.HandlePanic(ctx, "test-loop", 42, "test panic", []byte("stack trace"))
	handler.HandlePanic(ctx, "test-loop", -1, "test panic", []byte("stack trace"))

	// Then: No panic should occur (handler should not crash)
	// This is just a sanity test to ensure the handler works
}

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu                   sync.Mutex
	taskDurations        []TaskDurationMetric
	segmentDurations     []SegmentDurationMetric
	executionCompletions []ExecutionCompletedMetric
	taskPanics           []TaskPanicMetric
	queueDepths          []QueueDepthMetric
	taskRejections       []TaskRejectionMetric
}

type TaskDurationMetric struct {
	Name     string
	Priority TaskPriority
	Duration time.Duration
}

type SegmentDurationMetric struct {
	Name     string
	Kind     SegmentKind
	Duration time.Duration
}

type ExecutionCompletedMetric struct {
	Name     string
	Duration time.Duration
	Failed   bool
}

type TaskPanicMetric struct {
	Name      string
	PanicInfo any
}

type QueueDepthMetric struct {
	Name  string
	Depth int
}

type TaskRejectionMetric struct {
	Name   string
	Reason string
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{
		taskDurations:        make([]TaskDurationMetric, 0),
		segmentDurations:     make([]SegmentDurationMetric, 0),
		executionCompletions: make([]ExecutionCompletedMetric, 0),
		taskPanics:           make([]TaskPanicMetric, 0),
		queueDepths:          make([]QueueDepthMetric, 0),
		taskRejections:       make([]TaskRejectionMetric, 0),
	}
}

func (m *TestMetrics) RecordTaskDuration(name string, priority TaskPriority, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskDurations = append(m.taskDurations, TaskDurationMetric{
		Name:     name,
		Priority: priority,
		Duration: duration,
	})
}

func (m *TestMetrics) RecordSegmentDuration(name string, kind SegmentKind, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.segmentDurations = append(m.segmentDurations, SegmentDurationMetric{
		Name:     name,
		Kind:     kind,
		Duration: duration,
	})
}

func (m *TestMetrics) RecordExecutionCompleted(name string, duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executionCompletions = append(m.executionCompletions, ExecutionCompletedMetric{
		Name:     name,
		Duration: duration,
		Failed:   failed,
	})
}

func (m *TestMetrics) RecordTaskPanic(name string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskPanics = append(m.taskPanics, TaskPanicMetric{
		Name:      name,
		PanicInfo: panicInfo,
	})
}

func (m *TestMetrics) RecordQueueDepth(name string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queueDepths = append(m.queueDepths, QueueDepthMetric{
		Name:  name,
		Depth: depth,
	})
}

func (m *TestMetrics) RecordTaskRejected(name string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskRejections = append(m.taskRejections, TaskRejectionMetric{
		Name:   name,
		Reason: reason,
	})
}

func (m *TestMetrics) GetTaskDurations() []TaskDurationMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskDurations
}

func (m *TestMetrics) GetSegmentDurations() []SegmentDurationMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.segmentDurations
}

func (m *TestMetrics) GetExecutionCompletions() []ExecutionCompletedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executionCompletions
}

func (m *TestMetrics) GetTaskPanics() []TaskPanicMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskPanics
}

func (m *TestMetrics) GetQueueDepths() []QueueDepthMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueDepths
}

func (m *TestMetrics) GetTaskRejections() []TaskRejectionMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskRejections
}

func TestNilMetrics(t *testing.T) {
	// Given: A NilMetrics
	metrics := &NilMetrics{}

	// When: All methods are called
	metrics.RecordTaskDuration("test-loop", TaskPriorityUserVisible, time.Second)
	metrics.RecordSegmentDuration("test-loop", SegmentCompute, time.Second)
	metrics.RecordExecutionCompleted("test-loop", time.Second, false)
	metrics.RecordTaskPanic("test-loop", "panic")
	metrics.RecordQueueDepth("test-loop", 10)
	metrics.RecordTaskRejected("test-loop", "shutdown")

	// Then: No panic should occur (all methods are no-ops)
	// This is just a sanity test to ensure the no-op implementation works
}

func TestTestMetrics(t *testing.T) {
	// Given: A TestMetrics
	metrics := NewTestMetrics()

	// When: Metrics are recorded
	metrics.RecordTaskDuration("loop1", TaskPriorityUserBlocking, 100*time.Millisecond)
	metrics.RecordTaskDuration("loop1", TaskPriorityBestEffort, 200*time.Millisecond)
	metrics.RecordSegmentDuration("loop1", SegmentBlocking, 50*time.Millisecond)
	metrics.RecordExecutionCompleted("loop1", 300*time.Millisecond, true)
	metrics.RecordTaskPanic("loop2", "test panic")
	metrics.RecordQueueDepth("loop1", 5)
	metrics.RecordTaskRejected("loop3", "backpressure")

	// Then: Metrics should be recorded correctly
	if len(metrics.GetTaskDurations()) != 2 {
		t.Errorf("Expected 2 task durations, got %d", len(metrics.GetTaskDurations()))
	}

	if len(metrics.GetSegmentDurations()) != 1 {
		t.Errorf("Expected 1 segment duration, got %d", len(metrics.GetSegmentDurations()))
	}

	if len(metrics.GetExecutionCompletions()) != 1 {
		t.Errorf("Expected 1 execution completion, got %d", len(metrics.GetExecutionCompletions()))
	}

	if len(metrics.GetTaskPanics()) != 1 {
		t.Errorf("Expected 1 task panic, got %d", len(metrics.GetTaskPanics()))
	}

	if len(metrics.GetQueueDepths()) != 1 {
		t.Errorf("Expected 1 queue depth, got %d", len(metrics.GetQueueDepths()))
	}

	if len(metrics.GetTaskRejections()) != 1 {
		t.Errorf("Expected 1 task rejection, got %d", len(metrics.GetTaskRejections()))
	}

	// Verify values
	durations := metrics.GetTaskDurations()
	if durations[0].Name != "loop1" || durations[0].Duration != 100*time.Millisecond {
		t.Errorf("Unexpected first duration: %+v", durations[0])
	}

	segments := metrics.GetSegmentDurations()
	if segments[0].Kind != SegmentBlocking {
		t.Errorf("Unexpected segment kind: %+v", segments[0])
	}

	completions := metrics.GetExecutionCompletions()
	if !completions[0].Failed {
		t.Errorf("Unexpected completion: %+v", completions[0])
	}

	panics := metrics.GetTaskPanics()
	if panics[0].Name != "loop2" || panics[0].PanicInfo != "test panic" {
		t.Errorf("Unexpected panic: %+v", panics[0])
	}
}

// =============================================================================
// Test RejectedTaskHandler
// =============================================================================

// TestRejectedTaskHandler is a mock rejected task handler for testing
type TestRejectedTaskHandler struct {
	mu         sync.Mutex
	rejections []TaskRejection
}

type TaskRejection struct {
	Name   string
	Reason string
}

func NewTestRejectedTaskHandler() *TestRejectedTaskHandler {
	return &TestRejectedTaskHandler{
		rejections: make([]TaskRejection, 0),
	}
}

func (h *TestRejectedTaskHandler) HandleRejectedTask(name string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rejections = append(h.rejections, TaskRejection{
		Name:   name,
		Reason: reason,
	})
}

func (h *TestRejectedTaskHandler) GetRejections() []TaskRejection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rejections
}

func (h *TestRejectedTaskHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rejections)
}

func TestDefaultRejectedTaskHandler(t *testing.T) {
	// Given: A DefaultRejectedTaskHandler
	handler := &DefaultRejectedTaskHandler{}

	// When: HandleRejectedTask is called
	handler.HandleRejectedTask("test-loop", "shutdown")

	// Then: No panic should occur (handler should not crash)
	// This is just a sanity test to ensure the handler works
}

// =============================================================================
// Test ControllerConfig
// =============================================================================

func TestDefaultControllerConfig(t *testing.T) {
	// Given: Default config
	config := DefaultControllerConfig()

	// Then: All handlers should be non-nil
	if config.Logger == nil {
		t.Error("Logger should not be nil")
	}
	if config.PanicHandler == nil {
		t.Error("PanicHandler should not be nil")
	}
	if config.Metrics == nil {
		t.Error("Metrics should not be nil")
	}
	if config.RejectedTaskHandler == nil {
		t.Error("RejectedTaskHandler should not be nil")
	}

	// Verify types
	if _, ok := config.PanicHandler.(*DefaultPanicHandler); !ok {
		t.Errorf("PanicHandler should be *DefaultPanicHandler, got %T", config.PanicHandler)
	}
	if _, ok := config.Metrics.(*NilMetrics); !ok {
		t.Errorf("Metrics should be *NilMetrics, got %T", config.Metrics)
	}
	if _, ok := config.RejectedTaskHandler.(*DefaultRejectedTaskHandler); !ok {
		t.Errorf("RejectedTaskHandler should be *DefaultRejectedTaskHandler, got %T", config.RejectedTaskHandler)
	}

	// Verify default values
	if config.Name != "execctl" {
		t.Errorf("Name = %q, want %q", config.Name, "execctl")
	}
	if config.NumEventLoops != 2*runtime.NumCPU() {
		t.Errorf("NumEventLoops = %d, want %d", config.NumEventLoops, 2*runtime.NumCPU())
	}
	if config.ShutdownGrace != 0 {
		t.Errorf("ShutdownGrace = %v, want 0", config.ShutdownGrace)
	}
	if config.BlockingKeepAlive != 60*time.Second {
		t.Errorf("BlockingKeepAlive = %v, want 60s", config.BlockingKeepAlive)
	}
	if config.HistoryCapacity != 128 {
		t.Errorf("HistoryCapacity = %d, want 128", config.HistoryCapacity)
	}
}

func TestControllerConfig_WithDefaults_Nil(t *testing.T) {
	// Given: A nil config
	var config *ControllerConfig

	// When: Defaults are applied
	out := config.withDefaults()

	// Then: All fields carry default values
	if out.Name != "execctl" {
		t.Errorf("Name = %q, want %q", out.Name, "execctl")
	}
	if out.NumEventLoops != 2*runtime.NumCPU() {
		t.Errorf("NumEventLoops = %d, want %d", out.NumEventLoops, 2*runtime.NumCPU())
	}
	if out.BaseContext == nil {
		t.Error("BaseContext should not be nil")
	}
	if out.Logger == nil || out.PanicHandler == nil || out.Metrics == nil || out.RejectedTaskHandler == nil {
		t.Error("handlers should not be nil")
	}
}

func TestControllerConfig_WithDefaults_Partial(t *testing.T) {
	// Given: A partial config
	metrics := NewTestMetrics()
	config := &ControllerConfig{
		Name:          "custom",
		NumEventLoops: 3,
		Metrics:       metrics,
	}

	// When: Defaults are applied
	out := config.withDefaults()

	// Then: Custom fields are preserved
	if out.Name != "custom" {
		t.Errorf("Name = %q, want %q", out.Name, "custom")
	}
	if out.NumEventLoops != 3 {
		t.Errorf("NumEventLoops = %d, want 3", out.NumEventLoops)
	}
	if out.Metrics != metrics {
		t.Error("Metrics not preserved")
	}

	// Then: Zero fields are filled in
	if out.Logger == nil {
		t.Error("Logger should be filled in")
	}
	if out.BlockingKeepAlive != 60*time.Second {
		t.Errorf("BlockingKeepAlive = %v, want 60s", out.BlockingKeepAlive)
	}

	// Then: The original config is not mutated
	if config.Logger != nil {
		t.Error("original config was mutated")
	}
}

func TestControllerConfig_WithDefaults_HistoryCapacity(t *testing.T) {
	// Zero means "use the default capacity"
	out := (&ControllerConfig{}).withDefaults()
	if out.HistoryCapacity != 128 {
		t.Errorf("HistoryCapacity = %d, want 128", out.HistoryCapacity)
	}

	// Negative means "disable history" and must survive defaulting
	out = (&ControllerConfig{HistoryCapacity: -1}).withDefaults()
	if out.HistoryCapacity != -1 {
		t.Errorf("HistoryCapacity = %d, want -1", out.HistoryCapacity)
	}
}
