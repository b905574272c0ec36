// Copyright © 2018 The ELPS authors

package debugger

import (
	"context"

	"github.com/neo-project/neo-debugger-sub000/neovm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ContextOpenTelemetryTracerKey looks up a parent tracer name from a context key.
	ContextOpenTelemetryTracerKey = "otelParentTracer"

	defaultTracerName = "neodbg"
)

func contextTracer(ctx context.Context) trace.Tracer {
	tracerName, ok := ctx.Value(ContextOpenTelemetryTracerKey).(string)
	if !ok {
		tracerName = defaultTracerName
	}
	return otel.GetTracerProvider().Tracer(tracerName)
}

// startSpan opens the span of one session operation.
func (s *Session) startSpan(op string) trace.Span {
	_, span := contextTracer(s.ctx).Start(s.ctx, "neodbg."+op)
	return span
}

func recordSteps(span trace.Span, steps int) {
	span.SetAttributes(attribute.Int("neovm.instructions", steps))
}

// annotateStop records where execution stopped.
func (s *Session) annotateStop(span trace.Span, reason StopReason) {
	attrs := []attribute.KeyValue{
		attribute.String("neodbg.stop_reason", string(reason)),
	}
	if ctx := s.current(); ctx != nil {
		attrs = append(attrs,
			attribute.String("neovm.script_hash", ctx.ScriptHash().String()),
			attribute.Int("neovm.ip", ctx.IP()),
		)
		if method, ok := s.methodAt(ctx); ok {
			attrs = append(attrs, semconv.CodeFunction(method.DisplayName()))
			if sp, ok := method.SequencePointAt(ctx.IP()); ok {
				attrs = append(attrs,
					semconv.CodeFilepath(s.infos[ctx.ScriptHash()].Document(sp.Document)),
					semconv.CodeLineNumber(sp.Start.Line),
				)
			}
		}
	}
	span.SetAttributes(attrs...)
}

// annotateTerminal records how execution ended.
func (s *Session) annotateTerminal(span trace.Span, state neovm.State) {
	span.SetAttributes(attribute.String("neovm.state", state.String()))
	if state == neovm.Faulted {
		span.SetStatus(codes.Error, s.engine.FaultMessage())
	}
}
