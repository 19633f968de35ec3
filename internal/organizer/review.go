package organizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"spindle/internal/logging"
	"spindle/internal/notifications"
	"spindle/internal/queue"
	"spindle/internal/ripspec"
	"spindle/internal/services"
)

// finishReview moves encoded files to the review directory and marks the item complete.
func (o *Organizer) finishReview(ctx context.Context, item *queue.Item, stageStart time.Time, reason string, sources []string, detailErr error) error {
	if item == nil {
		return services.Wrap(services.ErrValidation, "organizing", "move to review", "Queue item unavailable for review routing", nil)
	}
	logger := logging.WithContext(ctx, o.logger)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Manual review required"
	}
	item.NeedsReview = true
	item.ReviewReason = reason

	if len(sources) == 0 && strings.TrimSpace(item.EncodedFile) != "" {
		sources = []string{item.EncodedFile}
	}

	var moved []string
	for _, source := range sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		target, err := o.movePathToReview(ctx, item, source)
		if err != nil {
			return err
		}
		moved = append(moved, target)
	}
	if len(moved) == 0 {
		return services.Wrap(services.ErrValidation, "organizing", "move to review", "No encoded files available to move to review directory", nil)
	}

	item.FinalFile = moved[len(moved)-1]
	item.EncodedFile = item.FinalFile
	item.Status = queue.StatusCompleted
	item.ProgressStage = "Manual review"
	item.ProgressPercent = 100
	item.ActiveEpisodeKey = ""
	if len(moved) == 1 {
		item.ProgressMessage = fmt.Sprintf("Moved to review directory: %s", filepath.Base(item.FinalFile))
	} else {
		item.ProgressMessage = fmt.Sprintf("Moved %d files to review directory", len(moved))
	}
	if strings.TrimSpace(item.ErrorMessage) == "" {
		if detailErr != nil {
			item.ErrorMessage = fmt.Sprintf("%s: %v", reason, detailErr)
		} else {
			item.ErrorMessage = reason
		}
	}

	if o.notifier != nil {
		label := filepath.Base(item.FinalFile)
		payload := notifications.Payload{
			"filename": label,
			"reason":   strings.TrimSpace(item.ReviewReason),
		}
		if len(moved) > 1 {
			payload["count"] = len(moved)
		}
		if err := o.notifier.Publish(ctx, notifications.EventUnidentifiedMedia, payload); err != nil {
			logger.Debug("review notification failed", logging.Error(err))
		}
	}

	for _, reviewPath := range moved {
		if err := o.validateOrganizedArtifact(ctx, reviewPath, stageStart, ""); err != nil {
			return err
		}
	}
	o.cleanupStaging(ctx, item)
	return nil
}

// movePathToReview moves a single file to the review directory.
func (o *Organizer) movePathToReview(ctx context.Context, item *queue.Item, sourcePath string) (string, error) {
	logger := logging.WithContext(ctx, o.logger)
	logger.Debug(
		"moving encoded file to review",
		logging.String("encoded_file", strings.TrimSpace(sourcePath)),
		logging.String("disc_title", strings.TrimSpace(item.DiscTitle)),
	)
	reviewDir := strings.TrimSpace(o.cfg.Paths.ReviewDir)
	if reviewDir == "" {
		return "", services.Wrap(
			services.ErrConfiguration,
			"organizing",
			"resolve review dir",
			"Review directory not configured; set review_dir in your spindle config.toml",
			nil,
		)
	}
	if err := os.MkdirAll(reviewDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "organizing", "ensure review dir", "Failed to create review directory", err)
	}
	ext := filepath.Ext(sourcePath)
	if ext == "" {
		ext = ".mkv"
	}
	bucket := reviewReasonBucket(item)
	bucketDir := filepath.Join(reviewDir, bucket)
	if err := os.MkdirAll(bucketDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "organizing", "ensure review bucket dir", "Failed to create review bucket directory", err)
	}
	baseName := strings.TrimSuffix(filepath.Base(sourcePath), ext)
	if baseName == "" {
		baseName = "unidentified"
	}
	target, err := o.nextReviewPath(bucketDir, baseName, ext)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "organizing", "allocate review filename", "Unable to allocate review filename", err)
	}
	if err := moveOrCopyFile(logger, sourcePath, target); err != nil {
		return "", err
	}
	return target, nil
}

// moveOrCopyFile attempts to rename a file, falling back to copy+delete for cross-device moves.
func moveOrCopyFile(logger *slog.Logger, source, target string) error {
	renameErr := os.Rename(source, target)
	if renameErr == nil {
		return nil
	}

	// Handle file exists - allocate a new name
	if errors.Is(renameErr, os.ErrExist) {
		return services.Wrap(services.ErrTransient, "organizing", "move review file", "Target file already exists", renameErr)
	}

	// Handle cross-device moves
	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if copyErr := copyFile(source, target); copyErr != nil {
			return services.Wrap(services.ErrTransient, "organizing", "copy review file", "Failed to copy file into review directory", copyErr)
		}
		if err := os.Remove(source); err != nil {
			logger.Warn("failed to remove source file after copy; duplicate files remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "review_source_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "manually delete the staging file if needed"),
				logging.String(logging.FieldImpact, "duplicate file exists in staging; manual cleanup needed"),
			)
		}
		return nil
	}

	return services.Wrap(services.ErrTransient, "organizing", "move review file", "Failed to move file into review directory", renameErr)
}

// nextReviewPath finds the first available path for originalName under dir,
// appending a "_N" suffix to the base name on collision per spec.md's
// move_to_review contract.
func (o *Organizer) nextReviewPath(dir, originalName, ext string) (string, error) {
	const maxAttempts = 10000
	if strings.TrimSpace(originalName) == "" {
		originalName = "unidentified"
	}
	if ext == "" {
		ext = ".mkv"
	}
	candidate := filepath.Join(dir, originalName+ext)
	if _, err := os.Stat(candidate); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		return "", err
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		name := fmt.Sprintf("%s_%d%s", originalName, attempt, ext)
		candidate = filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted review filename slots in %s", dir)
}

// reviewReasonBucket derives the <review>/<bucket>/ directory name from the
// item's review reason, per spec.md's move_to_review(src_path, reason_bucket).
func reviewReasonBucket(item *queue.Item) string {
	reason := strings.TrimSpace(item.ReviewReason)
	if reason == "" {
		reason = "unidentified"
	}
	bucket := sanitizeSlug(reason, 0)
	if bucket == "" {
		bucket = "unidentified"
	}
	return bucket
}

// handleLibraryUnavailable logs the unavailable library and routes to review.
func (o *Organizer) handleLibraryUnavailable(ctx context.Context, item *queue.Item, stageStart time.Time, env *ripspec.Envelope, err error) error {
	logger := logging.WithContext(ctx, o.logger)
	logReviewDecision(logger, "review", "library_unavailable")
	logLibraryUnavailable(logger, err)
	return o.finishReview(ctx, item, stageStart, "Library unavailable", collectEncodedSources(item, env), err)
}

