package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured field keys shared by the screening packages.
const (
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
	FieldStage    = "stage"
	FieldRunID    = "run_id"
)

// With attaches key/value string pairs to logger. Pairs with an empty key or value
// are skipped, as is a trailing key without a value. A nil logger becomes a no-op one.
func With(logger *zap.Logger, pairs ...string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	var fields []zap.Field
	for i := 0; i+1 < len(pairs); i += 2 {
		key := strings.TrimSpace(pairs[i])
		value := strings.TrimSpace(pairs[i+1])
		if key == "" || value == "" {
			continue
		}
		fields = append(fields, zap.String(key, value))
	}

	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// WithCommonFields tags logger with the provider and model serving a call.
func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return With(logger, FieldProvider, provider, FieldModel, model)
}

func WithStage(logger *zap.Logger, stage string) *zap.Logger {
	return With(logger, FieldStage, stage)
}

func WithRunID(logger *zap.Logger, runID string) *zap.Logger {
	return With(logger, FieldRunID, runID)
}
