// Package otelgate provides OpenTelemetry integration for gateway relay
// traffic.
package otelgate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayforge/mcpgate/relay"
)

// RelayObserver records relay traffic into OpenTelemetry.
type RelayObserver struct {
	tracer trace.Tracer

	calls       metric.Int64Counter
	discoveries metric.Int64Counter
	probes      metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewRelayObserver creates a relay observer bound to the provided
// meter/tracer.
func NewRelayObserver(meter metric.Meter, tracer trace.Tracer) (*RelayObserver, error) {
	calls, err := meter.Int64Counter(
		"mcpgate.relay.calls",
		metric.WithDescription("Number of relayed tool calls"),
	)
	if err != nil {
		return nil, err
	}
	discoveries, err := meter.Int64Counter(
		"mcpgate.relay.discoveries",
		metric.WithDescription("Number of tool discovery round trips"),
	)
	if err != nil {
		return nil, err
	}
	probes, err := meter.Int64Counter(
		"mcpgate.relay.probes",
		metric.WithDescription("Number of backend liveness probes"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"mcpgate.relay.latency",
		metric.WithDescription("Relay exchange latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RelayObserver{
		tracer:      tracer,
		calls:       calls,
		discoveries: discoveries,
		probes:      probes,
		latency:     latency,
	}, nil
}

// ObserveCall records one relayed request outcome.
func (o *RelayObserver) ObserveCall(observation relay.CallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend_id", observation.BackendID),
		attribute.String("method", observation.Method),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.calls.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(time.Duration(observation.DurationMS)*time.Millisecond)/float64(time.Second), options)

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "relay.call", trace.WithAttributes(attrs...))
	if !observation.Success {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ObserveDiscover records one discovery round trip.
func (o *RelayObserver) ObserveDiscover(observation relay.DiscoverObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend_id", observation.BackendID),
		attribute.Int("tool_count", observation.ToolCount),
		attribute.Bool("success", observation.Success),
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.discoveries.Add(ctx, 1, options)
	o.latency.Record(ctx, float64(time.Duration(observation.DurationMS)*time.Millisecond)/float64(time.Second), options)
}

// ObserveProbe records one liveness probe outcome.
func (o *RelayObserver) ObserveProbe(observation relay.ProbeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend_id", observation.BackendID),
		attribute.Bool("healthy", observation.Healthy),
	}
	o.probes.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

var _ relay.Observer = (*RelayObserver)(nil)
