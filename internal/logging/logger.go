package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production JSON logger at the given level. An empty or
// unparsable level falls back to info.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// WithOperation tags the logger with an operation name and, when known, the
// comparison request it belongs to.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	if requestID == "" {
		return logger.With(zap.String("operation", operation))
	}
	return logger.With(zap.String("operation", operation), zap.String("request_id", requestID))
}
