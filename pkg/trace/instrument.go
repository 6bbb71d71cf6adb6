package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentWarmup creates a span for the model warmup inference
func InstrumentWarmup(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "extractor.warmup",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
		),
	)
}

// InstrumentTick creates a span for one extraction tick
func InstrumentTick(ctx context.Context, sessionID string, seq uint64) (context.Context, trace.Span) {
	return StartSpan(ctx, "extractor.tick",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.Int64(AttrTickSeq, int64(seq)),
		),
	)
}

// InstrumentInference creates a span for one embedding model request
func InstrumentInference(ctx context.Context, sessionID string, seq uint64, windowSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, "extractor.inference",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.Int64(AttrTickSeq, int64(seq)),
			attribute.Int(AttrAudioWindowSize, windowSize),
		),
	)
}
