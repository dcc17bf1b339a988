package client

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg})
	if err != nil {
		t.Fatalf("NewPrometheusMetrics: %v", err)
	}

	base := map[string]string{labelDevice: "udp_127.0.0.1", labelService: "9999"}
	metrics.DispatcherStarted(base)
	metrics.DispatcherStopped(base)

	metrics.SendCompleted(base)
	metrics.SendFailed(errors.New("boom"), base)
	metrics.ReceiveCompleted(base)
	metrics.ReceiveFailed(errors.New("boom"), base)
	metrics.ConnectCompleted(base)
	metrics.ConnectFailed(errors.New("boom"), base)
	metrics.RMACompleted(base)
	metrics.RMAFailed(errors.New("boom"), base)
	metrics.KeepaliveTimedOut(base)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	cases := map[string]float64{
		"dispatcher_started_total": 1,
		"dispatcher_stopped_total": 1,
		"operations_total":         5, // send, recv, connect, rma, keepalive
		"operation_failures_total": 4, // send, recv, connect, rma
	}

	for name, want := range cases {
		if got := findCounterValue(mfs, name); got != want {
			t.Fatalf("unexpected counter %s: got %v want %v", name, got, want)
		}
	}
}

func TestPrometheusMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg}); err != nil {
		t.Fatalf("first NewPrometheusMetrics: %v", err)
	}
	if _, err := NewPrometheusMetrics(PrometheusMetricsOptions{Registerer: reg}); err != nil {
		t.Fatalf("second NewPrometheusMetrics should reuse existing collectors: %v", err)
	}
}

func findCounterValue(mfs []*dto.MetricFamily, name string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.Metric {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}
