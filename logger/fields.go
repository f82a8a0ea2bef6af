package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across flowstate.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Execution identity
	FieldExecID     = "exec_id"
	FieldProjectID  = "project_id"
	FieldFlowID     = "flow_id"
	FieldJobID      = "job_id"
	FieldAttempt    = "attempt"
	FieldGeneration = "generation"
	FieldLogName    = "log_name"
	FieldUUID       = "uuid"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldDriver    = "driver"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldCutoff     = "cutoff"
	FieldInterval   = "interval"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount  = "count"
	FieldBytes  = "bytes"
	FieldChunks = "chunks"

	// Status
	FieldStatus = "status"

	// Network
	FieldPort = "port"
	FieldHost = "host"
)

// Context keys for propagating logging context
type contextKey string

const (
	execIDKey    contextKey = "logger_exec_id"
	componentKey contextKey = "logger_component"
)

// WithExecID adds an execution id to the context for logging
func WithExecID(ctx context.Context, execID int64) context.Context {
	return context.WithValue(ctx, execIDKey, execID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if execID, ok := ctx.Value(execIDKey).(int64); ok && execID > 0 {
		fields = append(fields, FieldExecID, execID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns base (or the global logger when nil) with fields
// extracted from context.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
// Example:
//
//	opts := executor.Options{Logger: logger.ComponentLogger("executor")}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
