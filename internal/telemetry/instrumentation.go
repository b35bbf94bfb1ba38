package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes feed metrics, so they must stay low cardinality: operation names,
// status values, client and backend types. Artifact ids, item ids, paths and error
// messages belong in logs or the span status, never in attributes.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())

		if statusOf(err) == "error" {
			t.RecordSystemError(ctx, component, operationName)
		}
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", duration.Seconds()),
	)

	return err
}

// InstrumentStoreOperation instruments queue store operations.
func (t *Telemetry) InstrumentStoreOperation(ctx context.Context, backend, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "store_"+operation, "store", fn)
	duration := time.Since(start)

	t.RecordStoreOperation(ctx, backend, operation, statusOf(err), duration)

	return err
}

// InstrumentClientOperation instruments hub client operations.
func (t *Telemetry) InstrumentClientOperation(ctx context.Context, client, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "client_"+operation, "hub_client", fn)

	t.RecordClientOperation(ctx, client, operation, statusOf(err))

	return err
}

// InstrumentDownload instruments a whole artifact transfer.
func (t *Telemetry) InstrumentDownload(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.IncrementActiveDownloads(ctx)
	defer t.DecrementActiveDownloads(ctx)

	err := t.InstrumentOperation(ctx, "download", "worker", fn)

	t.RecordDownload(ctx, statusOf(err), time.Since(start))

	return err
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
