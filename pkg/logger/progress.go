package logger

import (
	"time"
)

// OperationLogger provides structured logging for operations with timing
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger.WithComponent("operation"),
		operation: operation,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	ol.logger.WithField("operation", operation).Info("Starting operation")
	return ol
}

// WithField adds a field to the operation context
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Elapsed returns the time since the operation started.
func (ol *OperationLogger) Elapsed() time.Duration {
	return time.Since(ol.startTime)
}

func (ol *OperationLogger) merged(extra Fields) Fields {
	fields := Fields{"operation": ol.operation}
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// Step logs a step within the operation
func (ol *OperationLogger) Step(step string, extra Fields) {
	fields := ol.merged(extra)
	fields["step"] = step
	ol.logger.WithFields(fields).Info("Operation step")
}

// Warning logs a warning during the operation
func (ol *OperationLogger) Warning(message string, extra Fields) {
	ol.logger.WithFields(ol.merged(extra)).Warn(message)
}

// Success completes the operation successfully
func (ol *OperationLogger) Success(message string) {
	ol.logger.WithFields(ol.merged(Fields{
		"duration": ol.Elapsed().String(),
		"status":   "success",
	})).Info(message)
}

// Error completes the operation with an error
func (ol *OperationLogger) Error(err error, message string) {
	ol.logger.WithError(err).WithFields(ol.merged(Fields{
		"duration": ol.Elapsed().String(),
		"status":   "error",
	})).Error(message)
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, logger Logger, fn func() error) error {
	ol := NewOperationLogger(operation, logger)

	err := fn()

	if err != nil {
		ol.Error(err, "Operation failed")
	} else {
		ol.Success("Operation completed successfully")
	}

	return err
}
