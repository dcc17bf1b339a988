package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus label keys. The teacher's metrics_prometheus.go referenced
// labelEndpointType/labelProvider/labelNode/labelService/labelKind/
// labelOperation/labelStatus without ever defining them; this is that
// missing const block, renamed to the device/service/operation/status
// vocabulary this package's MetricHook actually reports.
const (
	labelDevice    = "device"
	labelService   = "service"
	labelOperation = "operation"
	labelStatus    = "status"
)

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

// PrometheusMetrics implements MetricHook over a set of CounterVecs, one
// per event family, adapted from the teacher's client metrics but
// covering CCI's operation set (connect, send, recv, rma, keepalive)
// instead of libfabric's (send, recv).
type PrometheusMetrics struct {
	dispatcherStarted *prometheus.CounterVec
	dispatcherStopped *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
}

var dispatcherLabelKeys = []string{labelDevice, labelService}
var operationLabelKeys = []string{labelDevice, labelService, labelOperation}
var failureLabelKeys = []string{labelDevice, labelService, labelOperation, labelStatus}

// NewPrometheusMetrics builds and registers the counter vectors. A
// duplicate registration (e.g. two Clients sharing a Registerer) is
// tolerated by reusing the already-registered collector, the way the
// teacher's registerCounterVec helper did.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{}
	var err error
	m.dispatcherStarted, err = registerCounterVec(reg, opts, "dispatcher_started_total", "Number of client dispatcher loops started.", dispatcherLabelKeys)
	if err != nil {
		return nil, err
	}
	m.dispatcherStopped, err = registerCounterVec(reg, opts, "dispatcher_stopped_total", "Number of client dispatcher loops stopped.", dispatcherLabelKeys)
	if err != nil {
		return nil, err
	}
	m.operationsTotal, err = registerCounterVec(reg, opts, "operations_total", "Completed operations by kind.", operationLabelKeys)
	if err != nil {
		return nil, err
	}
	m.failuresTotal, err = registerCounterVec(reg, opts, "operation_failures_total", "Failed operations by kind and status.", failureLabelKeys)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, opts PrometheusMetricsOptions, name, help string, labelKeys []string) (*prometheus.CounterVec, error) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   opts.Namespace,
		Subsystem:   opts.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: opts.ConstLabels,
	}, labelKeys)
	if err := reg.Register(cv); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
			if ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return cv, nil
}

func (m *PrometheusMetrics) DispatcherStarted(attrs map[string]string) {
	m.dispatcherStarted.With(labels(attrs, dispatcherLabelKeys...)).Inc()
}

func (m *PrometheusMetrics) DispatcherStopped(attrs map[string]string) {
	m.dispatcherStopped.With(labels(attrs, dispatcherLabelKeys...)).Inc()
}

func (m *PrometheusMetrics) SendCompleted(attrs map[string]string) {
	m.op("send", attrs)
}

func (m *PrometheusMetrics) SendFailed(err error, attrs map[string]string) {
	m.failed("send", err, attrs)
}

func (m *PrometheusMetrics) ReceiveCompleted(attrs map[string]string) {
	m.op("recv", attrs)
}

func (m *PrometheusMetrics) ReceiveFailed(err error, attrs map[string]string) {
	m.failed("recv", err, attrs)
}

func (m *PrometheusMetrics) ConnectCompleted(attrs map[string]string) {
	m.op("connect", attrs)
}

func (m *PrometheusMetrics) ConnectFailed(err error, attrs map[string]string) {
	m.failed("connect", err, attrs)
}

func (m *PrometheusMetrics) RMACompleted(attrs map[string]string) {
	m.op("rma", attrs)
}

func (m *PrometheusMetrics) RMAFailed(err error, attrs map[string]string) {
	m.failed("rma", err, attrs)
}

func (m *PrometheusMetrics) KeepaliveTimedOut(attrs map[string]string) {
	m.op("keepalive", attrs)
}

func (m *PrometheusMetrics) op(kind string, attrs map[string]string) {
	lbl := labels(attrs, labelDevice, labelService)
	lbl[labelOperation] = kind
	m.operationsTotal.With(lbl).Inc()
}

func (m *PrometheusMetrics) failed(kind string, err error, attrs map[string]string) {
	lbl := labels(attrs, labelDevice, labelService)
	lbl[labelOperation] = kind
	lbl[labelStatus] = statusLabel(err)
	m.failuresTotal.With(lbl).Inc()
}

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	out := make(prometheus.Labels, len(keys))
	for _, k := range keys {
		out[k] = attrs[k]
	}
	return out
}

func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	return err.Error()
}
