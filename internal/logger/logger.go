// Package logger builds the zap logger shared by every component and offers
// small helpers for attaching structured fields.
package logger

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FieldJobID       = "job_id"
	FieldCandidateID = "candidate_id"
	FieldTaskID      = "task_id"
	FieldTask        = "task"
	FieldAttempt     = "attempt"
	FieldThreadID    = "thread_id"
	FieldUserID      = "user_id"
)

// New returns a logger writing to stdout. json switches the encoder, debug lowers the level.
func New(json bool, debug bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoding := "console"

	if json {
		encoding = "json"
	}

	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "msg",
			NameKey:    "component",

			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.RFC3339TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,

			EncodeDuration: zapcore.StringDurationEncoder,
		},
	}
	return cfg.Build()
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger is replaced by a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// EntityFields describes a (job, candidate) pair. Zero ids are omitted.
func EntityFields(jobID, candidateID int64) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if jobID > 0 {
		fields = append(fields, zap.Int64(FieldJobID, jobID))
	}
	if candidateID > 0 {
		fields = append(fields, zap.Int64(FieldCandidateID, candidateID))
	}
	return fields
}

// TaskFields describes one execution attempt of a background task.
func TaskFields(taskID, name string, attempt int) []zap.Field {
	fields := []zap.Field{zap.Int(FieldAttempt, attempt)}
	if id := strings.TrimSpace(taskID); id != "" {
		fields = append(fields, zap.String(FieldTaskID, id))
	}
	if n := strings.TrimSpace(name); n != "" {
		fields = append(fields, zap.String(FieldTask, n))
	}
	return fields
}

// IDString renders an int64 id for string-keyed log fields and channel names.
func IDString(id int64) string {
	return strconv.FormatInt(id, 10)
}

// TruncateForLog shortens s to limit runes, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
