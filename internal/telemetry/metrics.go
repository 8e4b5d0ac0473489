package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/butler/internal/procedure"
)

// StepMetrics records step outcomes and durations. It implements
// procedure.Observer.
type StepMetrics struct {
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// NewStepMetrics registers the step collectors on reg.
func NewStepMetrics(reg prometheus.Registerer) (*StepMetrics, error) {
	m := &StepMetrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "butler",
			Name:      "steps_total",
			Help:      "Step attempts by procedure and result.",
		}, []string{"procedure", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "butler",
			Name:      "step_duration_seconds",
			Help:      "Step run time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "butler",
			Name:      "steps_in_flight",
			Help:      "Steps currently running.",
		}),
		started: map[string]time.Time{},
	}
	for _, c := range []prometheus.Collector{m.steps, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("telemetry: register step metrics: %w", err)
		}
	}
	return m, nil
}

// StepStarted implements procedure.Observer.
func (m *StepMetrics) StepStarted(proc string, _ procedure.Step, index int) {
	m.inFlight.Inc()
	m.mu.Lock()
	m.started[stepKey(proc, index)] = time.Now()
	m.mu.Unlock()
}

// StepFinished implements procedure.Observer.
func (m *StepMetrics) StepFinished(proc string, step procedure.Step, index int, err error) {
	m.inFlight.Dec()
	key := stepKey(proc, index)
	m.mu.Lock()
	start, ok := m.started[key]
	delete(m.started, key)
	m.mu.Unlock()
	if ok {
		m.duration.WithLabelValues(proc).Observe(time.Since(start).Seconds())
	}
	result := "ok"
	if err != nil {
		result = "failed"
		if !step.Blocking {
			result = "failed_non_blocking"
		}
	}
	m.steps.WithLabelValues(proc, result).Inc()
}

func stepKey(proc string, index int) string {
	return fmt.Sprintf("%s#%d", proc, index)
}
