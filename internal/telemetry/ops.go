package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wiserhq/templates/internal/types"
)

// StartSpan opens a span for one orchestration operation. With telemetry
// disabled the no-op provider makes this free.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer(instrumentationScope).Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

var (
	instrumentsOnce sync.Once
	publishCounter  metric.Int64Counter
	convertCounter  metric.Int64Counter
	deployCounter   metric.Int64Counter
	syncCounter     metric.Int64Counter
)

func instruments() {
	m := Meter(instrumentationScope)
	publishCounter, _ = m.Int64Counter("wiser.templates.publishes",
		metric.WithDescription("Template versions promoted to an environment"))
	convertCounter, _ = m.Int64Counter("wiser.templates.legacy_converted",
		metric.WithDescription("Rows migrated by the legacy conversion job"))
	deployCounter, _ = m.Int64Counter("wiser.templates.branch_deploys",
		metric.WithDescription("Templates deployed into branch databases"))
	syncCounter, _ = m.Int64Counter("wiser.templates.object_syncs",
		metric.WithDescription("Database objects (views/routines/triggers) synchronized"))
}

// CountPublish records one completed promotion.
func CountPublish(ctx context.Context, env types.Environment) {
	instrumentsOnce.Do(instruments)
	publishCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("environment", env.String())))
}

// CountConverted records rows migrated by the conversion job.
func CountConverted(ctx context.Context, kind string, n int64) {
	instrumentsOnce.Do(instruments)
	convertCounter.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}

// CountBranchDeploy records one template copied into a branch.
func CountBranchDeploy(ctx context.Context) {
	instrumentsOnce.Do(instruments)
	deployCounter.Add(ctx, 1)
}

// CountObjectSync records one database-object synchronization attempt.
func CountObjectSync(ctx context.Context, kind string, ok bool) {
	instrumentsOnce.Do(instruments)
	syncCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("ok", ok),
	))
}
