package testhelpers

import (
	"testing"
	"time"

	"github.com/xraph/go-utils/metrics"
)

func TestMockMetricsCounterRecords(t *testing.T) {
	m := NewMockMetrics()

	m.Counter("requests", metrics.WithLabel("provider", "test")).Inc()
	m.Counter("requests").Add(2)

	if got := m.CounterValue("requests"); got != 3 {
		t.Errorf("counter value = %v, want 3", got)
	}
	if got := m.CounterValue("never_created"); got != 0 {
		t.Errorf("absent counter value = %v, want 0", got)
	}
}

func TestMockMetricsHistogramRecords(t *testing.T) {
	m := NewMockMetrics()

	m.Histogram("latency").Observe(0.25)
	m.Histogram("latency").Observe(0.5)

	obs := m.HistogramObservations("latency")
	if len(obs) != 2 || obs[0] != 0.25 || obs[1] != 0.5 {
		t.Errorf("observations = %v", obs)
	}
}

func TestMockMetricsTimer(t *testing.T) {
	m := NewMockMetrics()

	timer := m.Timer("work")
	timer.Record(10 * time.Millisecond)
	timer.Record(30 * time.Millisecond)

	if timer.Count() != 2 {
		t.Errorf("count = %d", timer.Count())
	}
	if timer.Mean() != 20*time.Millisecond {
		t.Errorf("mean = %v", timer.Mean())
	}
	if timer.Min() != 10*time.Millisecond || timer.Max() != 30*time.Millisecond {
		t.Errorf("min/max = %v/%v", timer.Min(), timer.Max())
	}
}

func TestMockMetricsReset(t *testing.T) {
	m := NewMockMetrics()
	m.Counter("requests").Inc()
	m.Gauge("depth").Set(4)

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := m.CounterValue("requests"); got != 0 {
		t.Errorf("counter survived reset: %v", got)
	}
}
