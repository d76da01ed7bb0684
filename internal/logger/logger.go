// Package logger wraps log/slog with the level, sampling and export setup shared
// by the server and the command line tools.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Level is an alias of slog.Level
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

// Options configures the process-wide logger
type Options struct {
	// Level is a level name accepted by ParseLevel
	Level string
	// SampleRate logs 1 out of every SampleRate warnings and errors; 1 logs all
	SampleRate int
	// OTELEnabled exports logs over OTLP gRPC instead of writing JSON
	OTELEnabled bool
	// ServiceName identifies the process to the OTLP collector
	ServiceName string
	// Output receives JSON logs, defaults to os.Stdout
	Output io.Writer
}

var (
	Logger       *slog.Logger
	sampleRate   atomic.Int32
	programLevel = new(slog.LevelVar)

	mu           sync.Mutex
	shutdownFunc func(context.Context) error // nil unless OTEL export is active
)

// Counters incremented regardless of sampling
var (
	TotalErrors   atomic.Int64
	TotalWarnings atomic.Int64
)

func init() {
	rate, _ := strconv.Atoi(os.Getenv("ERROR_SAMPLE_RATE"))
	opts := Options{
		Level:       os.Getenv("LOG_LEVEL"),
		SampleRate:  rate,
		OTELEnabled: strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}
	if err := Setup(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
	}
}

// Setup replaces the process-wide logger. When OTEL export cannot be set up it
// falls back to JSON and returns the setup error.
func Setup(ctx context.Context, opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil && opts.Level != "" {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	programLevel.Set(level)

	rate := opts.SampleRate
	if rate <= 0 {
		rate = 1
	}
	sampleRate.Store(int32(rate))

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	mu.Lock()
	defer mu.Unlock()

	if shutdownFunc != nil {
		_ = shutdownFunc(ctx)
		shutdownFunc = nil
	}

	if !opts.OTELEnabled {
		setupJSONLogging(out)
		return nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "offerrules"
	}

	shutdown, err := setupOTELLogging(ctx, serviceName)
	if err != nil {
		setupJSONLogging(out)
		return fmt.Errorf("failed to setup OTEL logging, falling back to JSON: %w", err)
	}
	shutdownFunc = shutdown
	return nil
}

// setupJSONLogging configures standard JSON logging
func setupJSONLogging(out io.Writer) {
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// setupOTELLogging bridges slog to an OTLP gRPC log exporter
func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	otelHandler := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(loggerProvider))

	Logger = slog.New(&levelHandler{level: programLevel, handler: otelHandler})
	slog.SetDefault(Logger)

	return loggerProvider.Shutdown, nil
}

// levelHandler wraps a handler to filter by level
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes and stops OTEL export. Call this during application shutdown.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	if shutdownFunc == nil {
		return nil
	}
	err := shutdownFunc(ctx)
	shutdownFunc = nil
	return err
}

// SetLevel sets the minimum log level
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level. Unknown or empty names yield INFO.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// shouldSample returns true for 1 out of every N calls on average
func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// With returns a logger carrying the given attributes
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Trace logs a trace-level message
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning-level message with sampling.
// TotalWarnings is always incremented.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error-level message with sampling.
// TotalErrors is always incremented.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message, flushes OTEL export and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	_ = Shutdown(context.Background())
	os.Exit(1)
}
