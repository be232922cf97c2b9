package stream

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type streamMetrics struct {
	tokens        metric.Int64Counter
	utterances    metric.Int64Counter
	chunks        metric.Int64Counter
	synthFailures metric.Int64Counter
	drainTimeouts metric.Int64Counter
}

func newStreamMetrics(log *slog.Logger) *streamMetrics {
	meter := otel.Meter("github.com/voxalabs/voxa-core/stream")
	m := &streamMetrics{}
	var err error
	if m.tokens, err = meter.Int64Counter("voxa.stream.tokens", metric.WithDescription("Model tokens relayed to clients")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return nil
	}
	m.utterances, _ = meter.Int64Counter("voxa.stream.utterances", metric.WithDescription("Utterances submitted for synthesis"))
	m.chunks, _ = meter.Int64Counter("voxa.stream.audio_chunks", metric.WithDescription("Audio chunks delivered to clients"))
	m.synthFailures, _ = meter.Int64Counter("voxa.stream.synth_failures", metric.WithDescription("Synthesis jobs that failed or were skipped"))
	m.drainTimeouts, _ = meter.Int64Counter("voxa.stream.drain_timeouts", metric.WithDescription("Sessions whose end-of-stream drain hit the ceiling"))
	return m
}

func (m *streamMetrics) add(ctx context.Context, c metric.Int64Counter, n int64) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, n)
}
