package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matzehuels/stackforge/pkg/observability"
)

// Span attribute keys.
const (
	AttrRunID       = "composition.run_id"
	AttrComposition = "composition.name"
	AttrStrategy    = "composition.strategy"
	AttrRefCount    = "composition.refs"
	AttrState       = "composition.state"
	AttrGenerator   = "generator.id"
	AttrSuccess     = "generator.success"
	AttrAction      = "rollback.action"
	AttrTarget      = "rollback.target"
)

// CompositionHooks implements observability.CompositionHooks with spans.
type CompositionHooks struct {
	tracer trace.Tracer
}

var _ observability.CompositionHooks = (*CompositionHooks)(nil)

// NewCompositionHooks returns hooks that start spans on tracer.
func NewCompositionHooks(tracer trace.Tracer) *CompositionHooks {
	return &CompositionHooks{tracer: tracer}
}

func (h *CompositionHooks) OnCompositionStart(ctx context.Context, runID, name, strategy string, refs int) context.Context {
	ctx, _ = h.tracer.Start(ctx, "composition."+name,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrComposition, name),
			attribute.String(AttrStrategy, strategy),
			attribute.Int(AttrRefCount, refs),
		),
	)
	return ctx
}

func (h *CompositionHooks) OnCompositionComplete(ctx context.Context, runID, state string, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String(AttrState, state))
	endSpan(span, err)
}

func (h *CompositionHooks) OnUnitStart(ctx context.Context, runID, id string) context.Context {
	ctx, _ = h.tracer.Start(ctx, "generator."+id,
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrGenerator, id),
		),
	)
	return ctx
}

func (h *CompositionHooks) OnUnitComplete(ctx context.Context, runID, id string, success bool, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Bool(AttrSuccess, success))
	endSpan(span, err)
}

func (h *CompositionHooks) OnRollback(ctx context.Context, runID, action, target string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAction, action),
		attribute.String(AttrTarget, target),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	trace.SpanFromContext(ctx).AddEvent("rollback", trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
