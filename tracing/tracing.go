/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package tracing exports spans of the download pipeline over OTLP when an
// endpoint is configured through the standard OTEL_* variables.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/supercluster/sequence-archiver/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	envSDKDisabled     = "OTEL_SDK_DISABLED"
	envEndpoint        = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envTracesEndpoint  = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	envProtocol        = "OTEL_EXPORTER_OTLP_PROTOCOL"
	envTracesProtocol  = "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"
	envTracesExporter  = "OTEL_TRACES_EXPORTER"
	envServiceName     = "OTEL_SERVICE_NAME"
	defaultServiceName = "sequence-archiver"

	protocolHTTP = "http/protobuf"
	protocolGRPC = "grpc"

	instrumentationName = "github.com/supercluster/sequence-archiver"
	exporterTimeout     = 5 * time.Second
)

var (
	ErrUnsupportedExporter = errors.New("unsupported traces exporter")
	ErrUnsupportedProtocol = errors.New("unsupported otlp protocol")
)

// Tracer returns the tracer used for spans around the download pipeline. Until Init
// is called it is backed by the no-op global provider.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName)
}

// IsDisabled reports whether spans should stay local. Tracing is on only when
// an OTLP endpoint is set and OTEL_SDK_DISABLED is not true.
func IsDisabled() (bool, error) {
	if v := os.Getenv(envSDKDisabled); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return true, fmt.Errorf("%s=%q: %w", envSDKDisabled, v, err)
		}
		if disabled {
			return true, nil
		}
	}
	return os.Getenv(envEndpoint) == "" && os.Getenv(envTracesEndpoint) == "", nil
}

// Init installs a batching OTLP tracer provider as the global provider and
// returns a function that flushes and stops it.
func Init(ctx context.Context) (func(context.Context) error, error) {
	exp, err := newExporter(ctx)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(serviceResource()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
		defer cancel()
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

// protocol returns the configured OTLP protocol, traces-specific value first.
func protocol() string {
	for _, env := range []string{envTracesProtocol, envProtocol} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return protocolHTTP
}

func newExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	if v := os.Getenv(envTracesExporter); v != "" && v != "otlp" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExporter, v)
	}

	ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()

	switch p := protocol(); p {
	case protocolHTTP:
		return otlptracehttp.New(ctx)
	case protocolGRPC:
		return otlptracegrpc.New(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, p)
	}
}

// serviceResource names the process in exported spans. OTEL_SERVICE_NAME wins
// over the default name.
func serviceResource() *resource.Resource {
	name := os.Getenv(envServiceName)
	if name == "" {
		name = defaultServiceName
	}
	return resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version.Version),
		attribute.String("service.revision", version.Revision),
	)
}
