package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spindle/internal/logging"
	"spindle/internal/queue"
	"spindle/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	stg, _ := m.stageForStatus(item.Status)
	logger := m.stageLoggerFor(ctx, stg, base, item).With(logging.String("component", "workflow-manager"))

	status, message := m.classifyStageFailure(stageName, stageErr)
	m.setItemFailureState(item, status, message)

	details := services.Details(stageErr)
	alertValue := "stage_failure"
	if status == queue.StatusReview {
		alertValue = "review_required"
	}
	attrs := []logging.Attr{
		logging.String("resolved_status", string(status)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Alert(alertValue),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorOperation, details.Operation),
		logging.String(logging.FieldErrorDetailPath, details.DetailPath),
		logging.String(logging.FieldErrorCode, details.Code),
		logging.String(logging.FieldErrorHint, details.Hint),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "stage_failure"))
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastItem(item)
	m.notifyStageError(ctx, stageName, item, stageErr)
	m.checkQueueCompletion(ctx)
}

// classifyStageFailure resolves the queue status a stage error should
// persist to. Validation, configuration, and not-found errors route the item
// to review instead of failing it outright, since those usually need a human
// to supply missing metadata rather than a blind retry.
func (m *Manager) classifyStageFailure(stageName string, stageErr error) (queue.Status, string) {
	if stageErr == nil {
		return queue.StatusFailed, m.getStageFailureMessage(stageName, "failed without error detail")
	}

	status := services.FailureStatus(stageErr)
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		message = m.getStageFailureMessage(stageName, "failed")
	}
	return status, message
}

func (m *Manager) getStageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}

func (m *Manager) setItemFailureState(item *queue.Item, status queue.Status, message string) {
	item.Status = status
	item.ErrorMessage = message

	if status == queue.StatusReview {
		item.ProgressStage = "Needs review"
	} else {
		item.ProgressStage = "Failed"
	}

	item.ProgressMessage = message
	item.ProgressPercent = 0
	item.LastHeartbeat = nil
}
