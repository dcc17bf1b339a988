package client

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider metric.MeterProvider
	Meter         metric.Meter

	InstrumentationName    string
	InstrumentationVersion string
}

// OTelMetrics implements MetricHook on top of OpenTelemetry counter
// instruments, the metrics-side counterpart to otelTracer in tracing.go.
type OTelMetrics struct {
	dispatcherStarted metric.Int64Counter
	dispatcherStopped metric.Int64Counter
	operationsTotal   metric.Int64Counter
	failuresTotal     metric.Int64Counter
}

// NewOTelMetrics builds the counter instruments against opts.Meter, or a
// meter obtained from opts.MeterProvider using opts.InstrumentationName.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/rocketbitz/cci-go/client"
		}
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	m := &OTelMetrics{}
	var err error
	if m.dispatcherStarted, err = meter.Int64Counter("cci.client.dispatcher_started",
		metric.WithDescription("Number of client dispatcher loops started.")); err != nil {
		return nil, err
	}
	if m.dispatcherStopped, err = meter.Int64Counter("cci.client.dispatcher_stopped",
		metric.WithDescription("Number of client dispatcher loops stopped.")); err != nil {
		return nil, err
	}
	if m.operationsTotal, err = meter.Int64Counter("cci.client.operations",
		metric.WithDescription("Completed operations by kind.")); err != nil {
		return nil, err
	}
	if m.failuresTotal, err = meter.Int64Counter("cci.client.operation_failures",
		metric.WithDescription("Failed operations by kind and status.")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *OTelMetrics) DispatcherStarted(attrs map[string]string) {
	m.dispatcherStarted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (m *OTelMetrics) DispatcherStopped(attrs map[string]string) {
	m.dispatcherStopped.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (m *OTelMetrics) SendCompleted(attrs map[string]string) {
	m.op("send", attrs)
}

func (m *OTelMetrics) SendFailed(err error, attrs map[string]string) {
	m.failed("send", err, attrs)
}

func (m *OTelMetrics) ReceiveCompleted(attrs map[string]string) {
	m.op("recv", attrs)
}

func (m *OTelMetrics) ReceiveFailed(err error, attrs map[string]string) {
	m.failed("recv", err, attrs)
}

func (m *OTelMetrics) ConnectCompleted(attrs map[string]string) {
	m.op("connect", attrs)
}

func (m *OTelMetrics) ConnectFailed(err error, attrs map[string]string) {
	m.failed("connect", err, attrs)
}

func (m *OTelMetrics) RMACompleted(attrs map[string]string) {
	m.op("rma", attrs)
}

func (m *OTelMetrics) RMAFailed(err error, attrs map[string]string) {
	m.failed("rma", err, attrs)
}

func (m *OTelMetrics) KeepaliveTimedOut(attrs map[string]string) {
	m.op("keepalive", attrs)
}

func (m *OTelMetrics) op(kind string, attrs map[string]string) {
	kv := otelAttrs(attrs)
	kv = append(kv, attribute.String(labelOperation, kind))
	m.operationsTotal.Add(context.Background(), 1, metric.WithAttributes(kv...))
}

func (m *OTelMetrics) failed(kind string, err error, attrs map[string]string) {
	kv := otelAttrs(attrs)
	kv = append(kv, attribute.String(labelOperation, kind), attribute.String(labelStatus, statusLabel(err)))
	m.failuresTotal.Add(context.Background(), 1, metric.WithAttributes(kv...))
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, attribute.String(k, v))
	}
	return out
}
