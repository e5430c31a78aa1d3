package otelinit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Instruments holds the scan-wide instruments the driver records into.
type Instruments struct {
	BytesScanned  metric.Int64Counter
	MatchEvents   metric.Int64Counter
	Finalized     metric.Int64Counter
	Discarded     metric.Int64Counter
	ExtractErrors metric.Int64Counter
	ScanDuration  metric.Float64Histogram
}

// InitMetrics sets up a global OTLP push metrics exporter. Returns a
// shutdown function and the common instruments; on exporter failure the
// instruments are no-ops against the default provider.
func InitMetrics(ctx context.Context, service string) (func(context.Context) error, Instruments) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		slog.Warn("metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, scanInstruments()
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Debug("metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, scanInstruments()
}

func scanInstruments() Instruments {
	meter := otel.Meter("rawcarve")
	bytes, _ := meter.Int64Counter("rawcarve_bytes_scanned_total")
	matches, _ := meter.Int64Counter("rawcarve_match_events_total")
	finalized, _ := meter.Int64Counter("rawcarve_sessions_finalized_total")
	discarded, _ := meter.Int64Counter("rawcarve_sessions_discarded_total")
	extractErrs, _ := meter.Int64Counter("rawcarve_extract_errors_total")
	dur, _ := meter.Float64Histogram("rawcarve_scan_duration_seconds")
	return Instruments{
		BytesScanned:  bytes,
		MatchEvents:   matches,
		Finalized:     finalized,
		Discarded:     discarded,
		ExtractErrors: extractErrs,
		ScanDuration:  dur,
	}
}
