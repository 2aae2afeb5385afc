package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/metrics"
)

// observedExecutor records duration, outcome and a span for every backend call.
type observedExecutor struct {
	inner  Executor
	tracer trace.Tracer
}

// observedCountingExecutor keeps the CountingFetcher capability visible
// through the wrapper.
type observedCountingExecutor struct {
	observedExecutor
	counting CountingFetcher
}

func observe(exec Executor, tracer trace.Tracer) Executor {
	base := observedExecutor{inner: exec, tracer: tracer}
	if counting, ok := exec.(CountingFetcher); ok {
		return observedCountingExecutor{observedExecutor: base, counting: counting}
	}
	return base
}

func (o observedExecutor) Name() string {
	return o.inner.Name()
}

func (o observedExecutor) Count(ctx context.Context, plan Plan) (int64, error) {
	ctx, finish := o.start(ctx, "count", plan)
	n, err := o.inner.Count(ctx, plan)
	finish(err)
	return n, err
}

func (o observedExecutor) Fetch(ctx context.Context, plan Plan, offset, limit int) ([]domain.TorrentView, error) {
	ctx, finish := o.start(ctx, "fetch", plan, attribute.Int("offset", offset), attribute.Int("limit", limit))
	items, err := o.inner.Fetch(ctx, plan, offset, limit)
	finish(err)
	return items, err
}

func (o observedCountingExecutor) FetchCounted(ctx context.Context, plan Plan, offset, limit int) ([]domain.TorrentView, int64, error) {
	ctx, finish := o.start(ctx, "fetch_counted", plan, attribute.Int("offset", offset), attribute.Int("limit", limit))
	items, total, err := o.counting.FetchCounted(ctx, plan, offset, limit)
	finish(err)
	return items, total, err
}

func (o observedExecutor) start(ctx context.Context, op string, plan Plan, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	backend := o.inner.Name()
	attrs = append(attrs,
		attribute.String("backend", backend),
		attribute.Bool("rss", plan.RSS),
		attribute.Bool("term", plan.HasTerm()),
	)
	ctx, span := o.tracer.Start(ctx, "executor."+op, trace.WithAttributes(attrs...))
	startedAt := time.Now()

	return ctx, func(err error) {
		metrics.BackendQueryDuration.WithLabelValues(backend, op).Observe(time.Since(startedAt).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.BackendQueriesTotal.WithLabelValues(backend, op, status).Inc()
		span.End()
	}
}
