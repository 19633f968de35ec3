package workflow

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"spindle/internal/logging"
	"spindle/internal/queue"
	"spindle/internal/services"
)

// stageLoggerFor returns the logger a stage invocation should use. Background
// stages (encoder, organizer) write to a dedicated per-item log file so their
// detailed progress doesn't flood the daemon's main log; other stages log
// through the shared runner logger. Either way the log carries a "lane" field
// so `spindle show --lane main|background` can filter it.
func (m *Manager) stageLoggerFor(ctx context.Context, stg pipelineStage, runnerLogger *slog.Logger, item *queue.Item) *slog.Logger {
	base := runnerLogger
	if base == nil {
		base = m.logger
	}
	if base == nil {
		base = logging.NewNop()
	}

	if stg.backgrounded && item != nil {
		path, created, err := m.bgLogger.Ensure(item)
		if err != nil {
			base.Warn("background log unavailable", logging.Error(err))
		} else {
			bgHandler, logErr := m.bgLogger.CreateHandler(path)
			if logErr != nil {
				base.Warn("failed to create background log writer", logging.Error(logErr))
			} else {
				if created {
					base.Info(
						"background log created",
						logging.String("path", path),
						logging.Int64(logging.FieldItemID, item.ID),
					)
				}
				// Background stages log ONLY to the item log, not the daemon log.
				base = slog.New(bgHandler).With(logging.Int64(logging.FieldItemID, item.ID))
			}
		}
	}

	logger := logging.WithContext(ctx, base.With(logging.String(logging.FieldLane, stg.lane())))
	if m != nil && m.cfg != nil {
		if stage, ok := services.StageFromContext(ctx); ok {
			if override := stageOverrideLevel(m.cfg.Logging.StageOverrides, stage); override != "" {
				logger = logging.WithLevelOverride(logger, parseStageLevel(override))
			}
		}
	}
	return logger
}

func stageOverrideLevel(overrides map[string]string, stage string) string {
	if len(overrides) == 0 {
		return ""
	}
	stage = strings.ToLower(strings.TrimSpace(stage))
	if stage == "" {
		return ""
	}
	for key, value := range overrides {
		if strings.ToLower(strings.TrimSpace(key)) == stage {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func parseStageLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func withStageContext(ctx context.Context, stg pipelineStage, item *queue.Item, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if item != nil {
		ctx = services.WithItemID(ctx, item.ID)
	}
	if stg.name != "" {
		ctx = services.WithStage(ctx, stg.name)
	}
	ctx = services.WithLane(ctx, stg.lane())
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

func deriveStageLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	parts := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, part := range parts {
		if part == "" {
			continue
		}
		runes := []rune(strings.ToLower(part))
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
