// Package telemetry turns auth activity events into OpenTelemetry metrics.
package telemetry

import (
	"context"

	auth "github.com/goliatone/go-storefront-auth"
	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	MetricLogins        = "auth.login.total"
	MetricTokenRejected = "auth.token.rejected"
	MetricRegistrations = "auth.user.registered"
)

// ActivityMetrics is an auth.ActivitySink that counts events.
//
// Contract:
// - Concurrency: safe for concurrent use, counters are.
// - Errors: Record never fails, unknown events are ignored.
type ActivityMetrics struct {
	logins        metric.Int64Counter
	rejected      metric.Int64Counter
	registrations metric.Int64Counter
}

var _ auth.ActivitySink = (*ActivityMetrics)(nil)

// NewActivityMetrics creates the counters on meter.
func NewActivityMetrics(meter metric.Meter) (*ActivityMetrics, error) {
	logins, err := meter.Int64Counter(
		MetricLogins,
		metric.WithDescription("Login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	rejected, err := meter.Int64Counter(
		MetricTokenRejected,
		metric.WithDescription("Requests rejected by token validation"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	registrations, err := meter.Int64Counter(
		MetricRegistrations,
		metric.WithDescription("Users registered"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, err
	}

	return &ActivityMetrics{
		logins:        logins,
		rejected:      rejected,
		registrations: registrations,
	}, nil
}

// Record implements auth.ActivitySink.
func (m *ActivityMetrics) Record(ctx context.Context, event auth.ActivityEvent) error {
	switch event.EventType {
	case auth.ActivityEventLoginSuccess:
		m.logins.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "success"),
		))
	case auth.ActivityEventLoginFailure:
		m.logins.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", "failure"),
			attribute.String("reason", event.Reason()),
		))
	case auth.ActivityEventTokenRejected:
		m.rejected.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", event.Reason()),
		))
	case auth.ActivityEventUserRegistered:
		m.registrations.Add(ctx, 1)
	}
	return nil
}

// NewPrometheusMeterProvider returns a meter provider whose readings are
// collected by reg, prom.DefaultRegisterer when nil.
func NewPrometheusMeterProvider(reg prom.Registerer) (*sdkmetric.MeterProvider, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}
