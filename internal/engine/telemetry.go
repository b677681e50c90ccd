package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("termalign.engine")

var (
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "termalign_operation_duration_seconds",
		Help:    "Duration of engine operations",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"op", "status"})

	edgesAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termalign_edges_added_total",
		Help: "Alignment edges added to the index",
	}, []string{"relation"})

	edgesReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termalign_edges_released_total",
		Help: "Alignment edges released from the index",
	}, []string{"relation"})

	cascadeUnmarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termalign_cascade_unmarked_total",
		Help: "Terms unmarked by the unmark cascade",
	})

	sweepIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "termalign_sweep_iterations",
		Help:    "Deleting iterations per orphan sweep",
		Buckets: prometheus.LinearBuckets(0, 2, 12),
	})

	sweepRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "termalign_sweep_removed_total",
		Help: "Hierarchy edges removed by the orphan sweep",
	})

	storeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termalign_store_failures_total",
		Help: "Operations aborted by a store failure",
	}, []string{"op"})

	indexEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "termalign_index_edges",
		Help: "Edges in the loaded session index",
	})
)

// startCommandSpan creates a span for one engine command.
func startCommandSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine."+name,
		trace.WithAttributes(attribute.String("termalign.op", name)),
	)
}

// finishCommand records the outcome of a command on its span and metrics.
func finishCommand(span trace.Span, name string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if IsStoreError(err) {
			storeFailures.WithLabelValues(name).Inc()
		}
	}
	operationDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())
	span.End()
}
