// Package telemetry installs the OpenTelemetry trace and log providers used by
// the relay's spans and by the "otel" logging format.
package telemetry

import (
	"context"
	"io"

	"github.com/mrsingh-rishi/voice-bot/config"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Providers holds the installed providers so they can be flushed on exit.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

// Setup builds the providers for cfg and registers them globally. With the
// "none" exporter nothing is installed and the returned Providers is empty.
func Setup(cfg config.TelemetryConfig, w io.Writer) (*Providers, error) {
	if cfg.Exporter == config.TelemetryExporterNone {
		return &Providers{}, nil
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, "trace exporter")
	}
	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, "log exporter")
	}

	p := New(cfg.ServiceName, sdktrace.NewBatchSpanProcessor(traceExporter), sdklog.NewBatchProcessor(logExporter))
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	global.SetLoggerProvider(p.LoggerProvider)
	return p, nil
}

// New builds providers for serviceName around the given processors without
// registering them.
func New(serviceName string, spans sdktrace.SpanProcessor, logs sdklog.Processor) *Providers {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return &Providers{
		TracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(spans),
			sdktrace.WithResource(res),
		),
		LoggerProvider: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(logs),
			sdklog.WithResource(res),
		),
	}
}

// Logs returns the provider log records should go to. It is a no-op provider
// when telemetry is disabled.
func (p *Providers) Logs() log.LoggerProvider {
	if p == nil || p.LoggerProvider == nil {
		return lognoop.NewLoggerProvider()
	}
	return p.LoggerProvider
}

// Shutdown flushes pending spans and log records and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var err error
	if p.TracerProvider != nil {
		if tpErr := p.TracerProvider.Shutdown(ctx); tpErr != nil {
			err = errors.Wrap(tpErr, "tracer provider")
		}
	}
	if p.LoggerProvider != nil {
		if lpErr := p.LoggerProvider.Shutdown(ctx); lpErr != nil && err == nil {
			err = errors.Wrap(lpErr, "logger provider")
		}
	}
	return err
}
