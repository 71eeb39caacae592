package testhelpers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/go-utils/metrics"
)

// MockMetrics is an in-memory metrics.Metrics implementation. Counter,
// gauge, histogram, and timer state is recorded per metric name so
// tests can assert on it; export, collectors, and lifecycle are no-ops.
type MockMetrics struct {
	mu         sync.Mutex
	counters   map[string]*mockCounter
	gauges     map[string]*mockGauge
	histograms map[string]*mockHistogram
	timers     map[string]*mockTimer
}

var _ metrics.Metrics = (*MockMetrics)(nil)

// NewMockMetrics returns a mock metrics instance for testing.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		counters:   make(map[string]*mockCounter),
		gauges:     make(map[string]*mockGauge),
		histograms: make(map[string]*mockHistogram),
		timers:     make(map[string]*mockTimer),
	}
}

func (m *MockMetrics) Name() string                    { return "mock-metrics" }
func (m *MockMetrics) Start(ctx context.Context) error { return nil }
func (m *MockMetrics) Stop(ctx context.Context) error  { return nil }
func (m *MockMetrics) Health(ctx context.Context) error {
	return nil
}

func (m *MockMetrics) Counter(name string, opts ...metrics.MetricOption) metrics.Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = &mockCounter{}
		m.counters[name] = c
	}
	return c
}

func (m *MockMetrics) Gauge(name string, opts ...metrics.MetricOption) metrics.Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gauges[name]
	if !ok {
		g = &mockGauge{}
		m.gauges[name] = g
	}
	return g
}

func (m *MockMetrics) Histogram(name string, opts ...metrics.MetricOption) metrics.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		h = &mockHistogram{}
		m.histograms[name] = h
	}
	return h
}

func (m *MockMetrics) Timer(name string, opts ...metrics.MetricOption) metrics.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[name]
	if !ok {
		t = &mockTimer{}
		m.timers[name] = t
	}
	return t
}

// CounterValue returns the recorded value of a counter, or 0 if the
// counter was never created.
func (m *MockMetrics) CounterValue(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[name]
	if !ok {
		return 0
	}
	return c.Value()
}

// HistogramObservations returns every value observed on a histogram in
// observation order.
func (m *MockMetrics) HistogramObservations(name string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		return nil
	}
	return h.observations()
}

func (m *MockMetrics) Export(format metrics.ExportFormat) ([]byte, error) {
	return nil, nil
}

func (m *MockMetrics) ExportToFile(format metrics.ExportFormat, filename string) error {
	return nil
}

func (m *MockMetrics) RegisterCollector(collector metrics.CustomCollector) error {
	return nil
}

func (m *MockMetrics) UnregisterCollector(name string) error { return nil }

func (m *MockMetrics) ListCollectors() []metrics.CustomCollector { return nil }

func (m *MockMetrics) ListMetrics() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.counters)+len(m.gauges))
	for name, c := range m.counters {
		out[name] = c.Value()
	}
	for name, g := range m.gauges {
		out[name] = g.Value()
	}
	return out
}

func (m *MockMetrics) ListMetricsByType(metricType metrics.MetricType) map[string]any {
	return nil
}

func (m *MockMetrics) ListMetricsByTag(tagKey, tagValue string) map[string]any {
	return nil
}

func (m *MockMetrics) Stats() metrics.CollectorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return metrics.CollectorStats{
		Name:          "mock-metrics",
		ActiveMetrics: len(m.counters) + len(m.gauges) + len(m.histograms) + len(m.timers),
	}
}

func (m *MockMetrics) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]*mockCounter)
	m.gauges = make(map[string]*mockGauge)
	m.histograms = make(map[string]*mockHistogram)
	m.timers = make(map[string]*mockTimer)
	return nil
}

func (m *MockMetrics) ResetMetric(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, name)
	delete(m.gauges, name)
	delete(m.histograms, name)
	delete(m.timers, name)
	return nil
}

func (m *MockMetrics) Reload(config *metrics.MetricsConfig) error { return nil }

type mockCounter struct {
	mu    sync.Mutex
	value float64
}

func (c *mockCounter) Inc() { c.Add(1) }

func (c *mockCounter) Add(delta float64) {
	c.mu.Lock()
	c.value += delta
	c.mu.Unlock()
}

func (c *mockCounter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *mockCounter) WithLabels(labels map[string]string) metrics.Counter { return c }

func (c *mockCounter) Reset() error {
	c.mu.Lock()
	c.value = 0
	c.mu.Unlock()
	return nil
}

type mockGauge struct {
	mu    sync.Mutex
	value float64
}

func (g *mockGauge) Set(value float64) {
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

func (g *mockGauge) Inc() { g.Add(1) }
func (g *mockGauge) Dec() { g.Add(-1) }

func (g *mockGauge) Add(delta float64) {
	g.mu.Lock()
	g.value += delta
	g.mu.Unlock()
}

func (g *mockGauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *mockGauge) WithLabels(labels map[string]string) metrics.Gauge { return g }

func (g *mockGauge) Reset() error {
	g.mu.Lock()
	g.value = 0
	g.mu.Unlock()
	return nil
}

type mockHistogram struct {
	mu     sync.Mutex
	values []float64
}

func (h *mockHistogram) Observe(value float64) {
	h.mu.Lock()
	h.values = append(h.values, value)
	h.mu.Unlock()
}

func (h *mockHistogram) observations() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.values...)
}

func (h *mockHistogram) WithLabels(labels map[string]string) metrics.Histogram { return h }

func (h *mockHistogram) Reset() error {
	h.mu.Lock()
	h.values = nil
	h.mu.Unlock()
	return nil
}

type mockTimer struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (t *mockTimer) Record(duration time.Duration) {
	t.mu.Lock()
	t.durations = append(t.durations, duration)
	t.mu.Unlock()
}

func (t *mockTimer) Time() func() {
	start := time.Now()
	return func() { t.Record(time.Since(start)) }
}

func (t *mockTimer) Count() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return uint64(len(t.durations))
}

func (t *mockTimer) Mean() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range t.durations {
		total += d
	}
	return total / time.Duration(len(t.durations))
}

func (t *mockTimer) Percentile(percentile float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), t.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(percentile / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

func (t *mockTimer) Min() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.durations) == 0 {
		return 0
	}
	minD := t.durations[0]
	for _, d := range t.durations[1:] {
		if d < minD {
			minD = d
		}
	}
	return minD
}

func (t *mockTimer) Max() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var maxD time.Duration
	for _, d := range t.durations {
		if d > maxD {
			maxD = d
		}
	}
	return maxD
}

func (t *mockTimer) WithLabels(labels map[string]string) metrics.Timer { return t }

func (t *mockTimer) Reset() error {
	t.mu.Lock()
	t.durations = nil
	t.mu.Unlock()
	return nil
}
