package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/config"
)

func TestNew_WithoutEndpointIsNoop(t *testing.T) {
	p, err := New(context.Background(), config.Config{ServiceName: "sleepboard"}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProviderIsSafe(t *testing.T) {
	var p *Provider
	require.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewSampler(t *testing.T) {
	params := func() sdktrace.SamplingParameters {
		var id trace.TraceID
		for i := range id {
			id[i] = 0xff
		}
		return sdktrace.SamplingParameters{ParentContext: context.Background(), TraceID: id, Name: "dashboard"}
	}

	require.Equal(t, sdktrace.RecordAndSample, newSampler(1).ShouldSample(params()).Decision)
	require.Equal(t, sdktrace.RecordAndSample, newSampler(2).ShouldSample(params()).Decision)
	require.Equal(t, sdktrace.Drop, newSampler(0).ShouldSample(params()).Decision)
	// The highest trace id falls outside any ratio below one.
	require.Equal(t, sdktrace.Drop, newSampler(0.5).ShouldSample(params()).Decision)
	require.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
