package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InferenceMetrics summarizes one model call against a text endpoint.
// Implements zapcore.ObjectMarshaler for structured logging.
//
//	metrics := logging.NewInferenceMetrics("mistral-7b-instruct-v0.2", 150, 200, 2*time.Second)
//	logger.Info("inference complete", logging.InferenceFields(metrics))
type InferenceMetrics struct {
	ModelName        string        `json:"model_name"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Duration         time.Duration `json:"duration"`
	TokensPerSecond  float64       `json:"tokens_per_second"`
}

// NewInferenceMetrics fills in the derived totals.
func NewInferenceMetrics(modelName string, promptTokens, completionTokens int, duration time.Duration) InferenceMetrics {
	total := promptTokens + completionTokens
	return InferenceMetrics{
		ModelName:        modelName,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      total,
		Duration:         duration,
		TokensPerSecond:  CalculateTokensPerSecond(completionTokens, duration),
	}
}

// CalculateTokensPerSecond returns 0 for non-positive durations.
func CalculateTokensPerSecond(tokens int, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(tokens) / duration.Seconds()
}

// MarshalLogObject encodes Duration in milliseconds.
func (m InferenceMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("model_name", m.ModelName)
	enc.AddInt("prompt_tokens", m.PromptTokens)
	enc.AddInt("completion_tokens", m.CompletionTokens)
	enc.AddInt("total_tokens", m.TotalTokens)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	enc.AddFloat64("tokens_per_second", m.TokensPerSecond)
	return nil
}

// InferenceFields wraps metrics as a nested "inference" object.
func InferenceFields(metrics InferenceMetrics) zap.Field {
	return zap.Object("inference", metrics)
}
