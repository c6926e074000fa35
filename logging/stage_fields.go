package logging

import (
	"time"

	"go.uber.org/zap"
)

// StageFields returns the fields logged on every stage transition.
//
// Example:
//
//	start := time.Now()
//	// ... run the stage ...
//	logger.Info("stage released", logging.StageFields("image-to-video", "cuda", time.Since(start))...)
func StageFields(stage, device string, elapsed time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("stage", stage),
		zap.String("device", device),
		zap.Duration("elapsed", elapsed),
	}
}

// ToolFields describes one external tool invocation.
func ToolFields(tool string, args []string, elapsed time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("tool", tool),
		zap.Strings("args", args),
		zap.Duration("elapsed", elapsed),
	}
}

// RunFields identifies a single job process in every log entry.
func RunFields(job, runID, contentID string) []zap.Field {
	fields := []zap.Field{
		zap.String("job", job),
		zap.String("run_id", runID),
	}
	if contentID != "" {
		fields = append(fields, zap.String("content_id", contentID))
	}
	return fields
}
