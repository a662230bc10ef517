package telemetry

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config selects where engine spans go. With no exporter the global no-op
// tracer stays in place.
type Config struct {
	Stdout     bool   `envconfig:"TRACE_STDOUT" default:"false"`
	OutputFile string `envconfig:"TRACE_OUTPUT_FILE"`
}

// Enabled reports whether any exporter is configured.
func (c *Config) Enabled() bool {
	return c.Stdout || c.OutputFile != ""
}

// Setup installs a global tracer provider and returns its shutdown func,
// which flushes pending spans.
func (c *Config) Setup(_ context.Context) (func(context.Context) error, error) {
	if !c.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	var (
		w        io.Writer = os.Stdout
		closeOut           = func() error { return nil }
	)
	if c.OutputFile != "" {
		f, err := os.OpenFile(c.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w, closeOut = f, f.Close
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		_ = closeOut()
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		return err
	}, nil
}
