package tracing

import (
	"context"
	"fmt"
	"iter"

	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
	appErrors "strivesync-backend/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider wraps OpenTelemetry tracer provider
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes distributed tracing
func InitTracing(ctx context.Context, serviceName, environment, endpoint string) (*TracerProvider, error) {
	exporter, err := otlptrace.New(ctx,
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.AlwaysSample())
	if environment == "production" {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{
		provider: tp,
		tracer:   tp.Tracer(serviceName),
	}, nil
}

// Tracer returns the tracer used for store spans.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// TraceStore wraps a store with one span per operation.
func TraceStore(store repository.Store, tracer trace.Tracer, table string) repository.Store {
	return &tracedStore{
		inner:  store,
		tracer: tracer,
		table:  table,
	}
}

type tracedStore struct {
	inner  repository.Store
	tracer trace.Tracer
	table  string
}

func (s *tracedStore) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		semconv.DBSystemKey.String("dynamodb"),
		semconv.DBOperationKey.String(operation),
		attribute.String("db.table", s.table),
	)
	return s.tracer.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func end(span trace.Span, err error) {
	// Expected outcomes are answers, not span errors.
	if err != nil && (appErrors.IsUnavailable(err) || appErrors.IsType(err, appErrors.ErrorTypeInternal)) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if appErr := appErrors.GetAppError(err); appErr != nil {
		span.SetAttributes(attribute.String("store.outcome", string(appErr.Type)))
	}
	span.End()
}

func keyAttrs(key keys.Primary) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("store.pk", key.PK),
		attribute.String("store.sk", key.SK),
	}
}

func (s *tracedStore) Put(ctx context.Context, item repository.Item, requireAbsent bool) error {
	ctx, span := s.start(ctx, "PutItem", attribute.Bool("store.require_absent", requireAbsent))
	err := s.inner.Put(ctx, item, requireAbsent)
	end(span, err)
	return err
}

func (s *tracedStore) Get(ctx context.Context, key keys.Primary) (repository.Item, error) {
	ctx, span := s.start(ctx, "GetItem", keyAttrs(key)...)
	item, err := s.inner.Get(ctx, key)
	span.SetAttributes(attribute.Bool("store.found", item != nil))
	end(span, err)
	return item, err
}

func (s *tracedStore) Query(ctx context.Context, in repository.QueryInput) iter.Seq2[repository.Item, error] {
	return func(yield func(repository.Item, error) bool) {
		ctx, span := s.start(ctx, "Query",
			attribute.String("store.index", in.Index),
			attribute.String("store.partition", in.Partition),
			attribute.String("store.sort_prefix", in.SortPrefix),
		)
		count := 0
		var failure error
		defer func() {
			span.SetAttributes(attribute.Int("store.items", count))
			end(span, failure)
		}()

		for item, err := range s.inner.Query(ctx, in) {
			if err != nil {
				failure = err
			} else {
				count++
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

func (s *tracedStore) Update(ctx context.Context, key keys.Primary, spec repository.UpdateSpec) (repository.Item, error) {
	attrs := keyAttrs(key)
	if spec.Counter != nil {
		attrs = append(attrs, attribute.Int64("store.counter_delta", spec.Counter.Delta))
	}
	ctx, span := s.start(ctx, "UpdateItem", attrs...)
	item, err := s.inner.Update(ctx, key, spec)
	end(span, err)
	return item, err
}

func (s *tracedStore) Delete(ctx context.Context, key keys.Primary, requireExists bool) error {
	ctx, span := s.start(ctx, "DeleteItem", keyAttrs(key)...)
	err := s.inner.Delete(ctx, key, requireExists)
	end(span, err)
	return err
}
