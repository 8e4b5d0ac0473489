// Package telemetry samples process resources for the dashboard and exposes
// step metrics over a prometheus endpoint.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

const (
	metricRSS       = "process_resident_memory_bytes"
	metricCPU       = "process_cpu_seconds_total"
	metricThreads   = "go_threads"
	metricSysMemory = "go_memstats_sys_bytes"
)

// Sample is one reading of the running process.
type Sample struct {
	Elapsed     time.Duration
	MemoryBytes float64
	CPUPercent  float64
	Threads     float64
}

// Sampler reads process metrics from a private prometheus registry and keeps
// the maximum of every reading.
type Sampler struct {
	registry *prometheus.Registry
	start    time.Time
	now      func() time.Time

	mu      sync.Mutex
	lastCPU float64
	lastAt  time.Time
	latest  Sample
	max     Sample
}

// NewSampler registers the process and Go runtime collectors on a new
// registry. The elapsed clock starts now.
func NewSampler() *Sampler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	start := time.Now()
	return &Sampler{registry: registry, start: start, lastAt: start, now: time.Now}
}

// Registry returns the registry backing the sampler so step metrics and the
// /metrics endpoint can share it.
func (s *Sampler) Registry() *prometheus.Registry {
	return s.registry
}

// Sample gathers a fresh reading and updates the maxima.
func (s *Sampler) Sample() Sample {
	values := map[string]float64{}
	if families, err := s.registry.Gather(); err == nil {
		for _, family := range families {
			switch family.GetName() {
			case metricRSS, metricCPU, metricThreads, metricSysMemory:
				values[family.GetName()] = firstValue(family)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sample := Sample{
		Elapsed:     now.Sub(s.start),
		MemoryBytes: values[metricRSS],
		Threads:     values[metricThreads],
	}
	if sample.MemoryBytes == 0 {
		sample.MemoryBytes = values[metricSysMemory]
	}
	if cpu, ok := values[metricCPU]; ok {
		if wall := now.Sub(s.lastAt).Seconds(); wall > 0 && cpu >= s.lastCPU {
			sample.CPUPercent = (cpu - s.lastCPU) / wall * 100
		}
		s.lastCPU = cpu
		s.lastAt = now
	}
	s.latest = sample
	s.max = maxSample(s.max, sample)
	return sample
}

// Latest returns the most recent reading.
func (s *Sampler) Latest() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Max returns the per-field maximum of every reading so far.
func (s *Sampler) Max() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

func maxSample(a, b Sample) Sample {
	out := a
	if b.Elapsed > out.Elapsed {
		out.Elapsed = b.Elapsed
	}
	if b.MemoryBytes > out.MemoryBytes {
		out.MemoryBytes = b.MemoryBytes
	}
	if b.CPUPercent > out.CPUPercent {
		out.CPUPercent = b.CPUPercent
	}
	if b.Threads > out.Threads {
		out.Threads = b.Threads
	}
	return out
}

func firstValue(family *dto.MetricFamily) float64 {
	metrics := family.GetMetric()
	if len(metrics) == 0 {
		return 0
	}
	m := metrics[0]
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}
