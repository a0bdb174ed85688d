package trace

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

// LogSink writes trace events through a structured logger.
// Fail events are logged at error level, everything else at the configured level.
type LogSink struct {
	log   *slog.Logger
	level slog.Level
}

// NewLogSink creates a sink logging at info level. A nil logger falls back to slog.Default().
func NewLogSink(log *slog.Logger) *LogSink {
	return NewLogSinkWithLevel(log, slog.LevelInfo)
}

// NewLogSinkWithLevel creates a sink logging at the given level.
func NewLogSinkWithLevel(log *slog.Logger, level slog.Level) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{
		log:   log.With(logger.Component("transition")),
		level: level,
	}
}

func (s *LogSink) Record(ctx context.Context, e Event) {
	level := s.level
	if e.Kind == KindFail {
		level = slog.LevelError
	}
	if !s.log.Enabled(ctx, level) {
		return
	}

	s.log.LogAttrs(ctx, level, string(e.Kind),
		logger.TrID(e.TrID),
		logger.RootID(e.RootID),
		logger.ParentID(e.ParentID),
		logger.Process(e.Process),
		logger.Action(e.Action),
		logger.EntityKey(e.EntityKey),
		slog.String("payload", e.Payload),
	)
}
