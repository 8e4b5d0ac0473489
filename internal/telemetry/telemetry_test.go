package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kingrea/butler/internal/procedure"
)

func TestFormatBytes(t *testing.T) {
	cases := map[float64]string{
		0:                      "0.0 bytes",
		512:                    "512.0 bytes",
		2048:                   "2.0 KB",
		5.5 * 1024 * 1024:      "5.5 MB",
		3 * 1024 * 1024 * 1024: "3.0 GB",
		2 * 1 << 40:            "2.0 TB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Fatalf("FormatBytes(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                    "00:00:00.00",
		1500 * time.Millisecond:              "00:00:01.50",
		61*time.Minute + 5*time.Second:       "01:01:05.00",
		25*time.Hour + 30*time.Millisecond:   "25:00:00.03",
		-time.Second:                         "00:00:00.00",
	}
	for in, want := range cases {
		if got := FormatElapsed(in); got != want {
			t.Fatalf("FormatElapsed(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestSamplerTracksMaxima(t *testing.T) {
	s := NewSampler()
	first := s.Sample()
	if first.Threads <= 0 {
		t.Fatalf("expected thread count from go collector, got %v", first.Threads)
	}
	if first.MemoryBytes <= 0 {
		t.Fatalf("expected memory reading, got %v", first.MemoryBytes)
	}
	time.Sleep(5 * time.Millisecond)
	second := s.Sample()
	if second.Elapsed <= first.Elapsed {
		t.Fatalf("elapsed did not advance: %v then %v", first.Elapsed, second.Elapsed)
	}
	max := s.Max()
	if max.Threads < first.Threads || max.Threads < second.Threads || max.Elapsed != second.Elapsed {
		t.Fatalf("unexpected maxima %+v", max)
	}
	if s.Latest() != second {
		t.Fatalf("latest should be the last sample")
	}
}

func TestMaxSample(t *testing.T) {
	got := maxSample(Sample{MemoryBytes: 10, CPUPercent: 50}, Sample{MemoryBytes: 5, CPUPercent: 80, Threads: 3})
	want := Sample{MemoryBytes: 10, CPUPercent: 80, Threads: 3}
	if got != want {
		t.Fatalf("maxSample = %+v, want %+v", got, want)
	}
}

func TestStepMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewStepMetrics(reg)
	if err != nil {
		t.Fatalf("new step metrics: %v", err)
	}
	ok := procedure.NewStep("ok", func(context.Context) error { return nil })
	soft := procedure.NewStep("soft", func(context.Context) error { return nil }, procedure.NonBlocking())
	m.StepStarted("build", ok, 1)
	m.StepFinished("build", ok, 1, nil)
	m.StepStarted("build", soft, 2)
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}
	m.StepFinished("build", soft, 2, errors.New("x"))

	if got := testutil.ToFloat64(m.steps.WithLabelValues("build", "ok")); got != 1 {
		t.Fatalf("ok count = %v", got)
	}
	if got := testutil.ToFloat64(m.steps.WithLabelValues("build", "failed_non_blocking")); got != 1 {
		t.Fatalf("non-blocking failure count = %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
	if _, err := NewStepMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestServeExposesMetrics(t *testing.T) {
	s := NewSampler()
	if _, err := NewStepMetrics(s.Registry()); err != nil {
		t.Fatalf("step metrics: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", s.Registry(), ready) }()
	addr := <-ready

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "go_threads") || !strings.Contains(string(body), "butler_steps_in_flight") {
		t.Fatalf("metrics body missing expected series:\n%s", body)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
}
