package organizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"spindle/internal/config"
	"spindle/internal/logging"
	"spindle/internal/media/ffprobe"
	"spindle/internal/notifications"
	"spindle/internal/queue"
	"spindle/internal/ripspec"
	"spindle/internal/services"
	"spindle/internal/services/plex"
	"spindle/internal/stage"
)

// MetadataProvider describes the media metadata used for organization.
type MetadataProvider interface {
	GetLibraryPath(root, moviesDir, tvDir string) string
	GetFilename() string
	IsMovie() bool
	Title() string
}

// Organizer moves encoded files into the final library location.
type Organizer struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	plex plex.Service
	notifier notifications.Service
}

const (
	minOrganizedFileSizeBytes = 5 * 1024 * 1024
)

var organizerProbe = ffprobe.Inspect

// NewOrganizer constructs the organizer stage handler using default dependencies.
func NewOrganizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Organizer {
	plexService := plex.NewConfiguredService(cfg)
	return NewOrganizerWithDependencies(cfg, store, logger, plexService, notifications.NewService(cfg))
}

// NewOrganizerWithDependencies allows injecting collaborators (used in tests).
func NewOrganizerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, plexClient plex.Service, notifier notifications.Service) *Organizer {
	org := &Organizer{store: store, cfg: cfg, plex: plexClient, notifier: notifier}
	org.SetLogger(logger)
	return org
}

// SetLogger updates the organizer's logging destination while preserving component labeling.
func (o *Organizer) SetLogger(logger *slog.Logger) {
	o.logger = logging.NewComponentLogger(logger, "organizer")
}

func (o *Organizer) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, o.logger)
	item.InitProgress("Organizing", "Preparing library organization")
	logger.Debug("starting organization preparation")
	return nil
}

func (o *Organizer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, o.logger)
	stageStart := time.Now()
	env, err := ripspec.Parse(item.RipSpecData)
	if err != nil {
		return services.Wrap(
			services.ErrValidation,
			"organizing",
			"parse rip spec",
			"Rip specification missing or invalid; rerun identification",
			err,
		)
	}
	logger.Debug("starting organization")
	encodedSources := collectEncodedSources(item, &env)
	if len(encodedSources) == 0 {
		return services.Wrap(
			services.ErrValidation,
			"organizing",
			"validate inputs",
			"No encoded file present for organization; run encoding before organizing or check staging_dir permissions",
			nil,
		)
	}
	if item.NeedsReview {
		logger.Info(
			"organizer review decision",
			logging.String(logging.FieldDecisionType, "organizer_review_routing"),
			logging.String("decision_result", "review"),
			logging.String("decision_reason", "needs_review_flag"),
			logging.String("decision_options", "organize, review"),
			logging.String("review_reason", strings.TrimSpace(item.ReviewReason)),
		)
		logger.Debug("routing item to manual review", logging.String("reason", strings.TrimSpace(item.ReviewReason)))
		return o.finishReview(ctx, item, stageStart, strings.TrimSpace(item.ReviewReason), encodedSources, nil)
	}
	logger.Info(
		"organizer review decision",
		logging.String(logging.FieldDecisionType, "organizer_review_routing"),
		logging.String("decision_result", "organize"),
		logging.String("decision_reason", "ready_for_organize"),
		logging.String("decision_options", "organize, review"),
	)
	var meta MetadataProvider
	meta = queue.MetadataFromJSON(item.MetadataJSON, item.DiscTitle)
	if item.MetadataJSON == "" || meta.Title() == "" {
		fallbackTitle := item.DiscTitle
		if fallbackTitle == "" {
			base := strings.TrimSpace(filepath.Base(item.EncodedFile))
			fallbackTitle = strings.TrimSuffix(base, filepath.Ext(base))
		}
		fallbackReason := "metadata_missing"
		if item.MetadataJSON != "" {
			fallbackReason = "title_missing"
		}
		logger.Info(
			"metadata selection decision",
			logging.String(logging.FieldDecisionType, "metadata_fallback"),
			logging.String("decision_result", "fallback_metadata"),
			logging.String("decision_reason", fallbackReason),
			logging.String("decision_options", "metadata, fallback"),
			logging.String("fallback_title", strings.TrimSpace(fallbackTitle)),
		)
		basic := queue.NewBasicMetadata(fallbackTitle, true)
		encoded, err := json.Marshal(basic)
		if err != nil {
			return services.Wrap(services.ErrTransient, "organizing", "encode metadata", "Failed to encode fallback metadata", err)
		}
		item.MetadataJSON = string(encoded)
		meta = basic
		if err := o.store.Update(ctx, item); err != nil {
			o.logger.Warn("failed to persist fallback metadata; organizer may re-evaluate defaults",
				logging.Error(err),
				logging.String(logging.FieldEventType, "metadata_persist_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "metadata may be regenerated on retry"),
			)
		}
	}
	jobs, err := buildOrganizeJobs(env, queue.MetadataFromJSON(item.MetadataJSON, item.DiscTitle))
	if err != nil {
		return services.Wrap(
			services.ErrValidation,
			"organizing",
			"plan tv organization",
			"Unable to map encoded episodes to library destinations",
			err,
		)
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldDecisionType, "organizer_job_plan"),
		logging.String("decision_result", ternary(len(jobs) > 0, "episodes", "single_file")),
		logging.String("decision_reason", ternary(len(jobs) > 0, "episode_assets", "single_media_asset")),
		logging.String("decision_options", "episodes, single_file"),
		logging.Int("job_count", len(jobs)),
	}
	attrs = appendOrganizeJobLines(attrs, jobs)
	logger.Info("organizer job plan", logging.Args(attrs...)...)
	if len(jobs) > 0 {
		return o.organizeEpisodes(ctx, item, &env, jobs, logger, stageStart)
	}

	o.updateProgress(ctx, item, "Organizing library structure", 20)
	logger.Debug("organizing encoded file into library", logging.String("encoded_file", item.EncodedFile))
	targetPath, err := o.plex.Organize(ctx, item.EncodedFile, meta)
	if err != nil {
		if isLibraryUnavailable(err) {
			logger.Info(
				"organizer review decision",
				logging.String(logging.FieldDecisionType, "organizer_review_routing"),
				logging.String("decision_result", "review"),
				logging.String("decision_reason", "library_unavailable"),
				logging.String("decision_options", "organize, review"),
			)
			logger.Warn("library unavailable; moving to review directory",
				logging.Error(err),
				logging.String(logging.FieldEventType, "library_unavailable"),
				logging.String(logging.FieldErrorHint, "check library_dir mount and Plex configuration"),
				logging.String(logging.FieldImpact, "item routed to review directory for manual handling"),
			)
			return o.finishReview(ctx, item, stageStart, "Library unavailable", encodedSources, err)
		}
		return services.Wrap(services.ErrExternalTool, "organizing", "move to library", "Failed to move media into library", err)
	}
	item.FinalFile = targetPath
	logger.Debug("library move completed", logging.String("final_file", targetPath))
	if err := o.moveGeneratedSubtitles(ctx, item, targetPath); err != nil {
		logger.Warn("subtitle sidecar move failed; subtitles may be missing in library",
			logging.Error(err),
			logging.String(logging.FieldEventType, "subtitle_move_failed"),
			logging.String(logging.FieldErrorHint, "check library_dir permissions and subtitle file names"),
			logging.String(logging.FieldImpact, "subtitles will not appear in Plex for this item"),
		)
	}
	if err := o.validateOrganizedArtifact(ctx, targetPath, stageStart, ""); err != nil {
		return err
	}

	o.updateProgress(ctx, item, "Refreshing Plex library", 80)
	refreshAllowed, refreshReason := shouldRefreshPlex(o.cfg)
	if o.plex == nil {
		refreshAllowed = false
		refreshReason = "service_unavailable"
	}
	logger.Debug(
		"plex refresh decision",
		logging.String(logging.FieldDecisionType, "plex_refresh"),
		logging.String("decision_result", ternary(refreshAllowed, "refresh", "skip")),
		logging.String("decision_reason", refreshReason),
		logging.String("decision_options", "refresh, skip"),
		logging.String("decision_scope", "item"),
	)
	plexRefreshed := false
	if refreshAllowed {
		if err := o.plex.Refresh(ctx, meta); err != nil {
			logger.Warn("plex refresh failed; library scan may be stale",
				logging.Error(err),
				logging.String(logging.FieldEventType, "plex_refresh_failed"),
				logging.String(logging.FieldErrorHint, "check plex.url and plex.token"),
				logging.String(logging.FieldImpact, "new media may not appear in Plex until next scan"),
			)
		} else {
			logger.Debug("plex library refresh requested", logging.String("title", strings.TrimSpace(meta.Title())))
			plexRefreshed = true
		}
	}

	o.updateProgress(ctx, item, "Organization completed", 100)
	item.ProgressMessage = fmt.Sprintf("Available in library: %s", filepath.Base(targetPath))

	// Calculate resource metrics
	var finalFileSize int64
	if info, err := os.Stat(targetPath); err == nil {
		finalFileSize = info.Size()
	}

	// Log stage summary
	logger.Info(
		"organizing stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("final_file", targetPath),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int64("final_file_size_bytes", finalFileSize),
		logging.String("media_title", strings.TrimSpace(meta.Title())),
		logging.Bool("is_movie", meta.IsMovie()),
	)

	title := notificationTitle(meta, item.DiscTitle, targetPath)
	o.publishCompletionNotifications(ctx, logger, title, targetPath, plexRefreshed, 0, 0)

	o.cleanupStaging(ctx, item)
	return nil
}

func (o *Organizer) moveGeneratedSubtitles(ctx context.Context, item *queue.Item, targetPath string) error {
	if item == nil {
		return nil
	}
	encodedPath := strings.TrimSpace(item.EncodedFile)
	if encodedPath == "" {
		return nil
	}
	stagingDir := filepath.Dir(encodedPath)
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return fmt.Errorf("enumerate staging dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(encodedPath), filepath.Ext(encodedPath))
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(targetPath), filepath.Ext(targetPath))
	}
	destBase := strings.TrimSuffix(filepath.Base(targetPath), filepath.Ext(targetPath))
	destDir := filepath.Dir(targetPath)

	moved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".srt") {
			continue
		}
		prefix := base + "."
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		suffix := name[len(prefix):]
		if suffix == "" {
			continue
		}
		source := filepath.Join(stagingDir, name)
		destination := filepath.Join(destDir, fmt.Sprintf("%s.%s", destBase, suffix))
		if o.cfg != nil && o.cfg.Library.OverwriteExisting {
			if err := os.Remove(destination); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove existing subtitle %q: %w", destination, err)
			}
		}
		if err := plex.FileMover(source, destination); err != nil {
			return fmt.Errorf("move subtitle %q: %w", name, err)
		}
		moved++
	}
	if moved > 0 && o.logger != nil {
		o.logger.Debug(
			"moved subtitle sidecars",
			logging.Int("count", moved),
			logging.String("destination", destDir),
		)
	}
	return nil
}

func shouldRefreshPlex(cfg *config.Config) (bool, string) {
	if cfg == nil {
		return false, "config_unavailable"
	}
	if !cfg.Plex.Enabled {
		return false, "disabled"
	}
	if strings.TrimSpace(cfg.Plex.URL) == "" || strings.TrimSpace(cfg.Plex.Token) == "" {
		return false, "missing_credentials"
	}
	return true, "configured"
}

func ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}











// HealthCheck verifies organizer prerequisites such as library paths and Plex connectivity configuration.
func (o *Organizer) HealthCheck(ctx context.Context) stage.Health {
	const name = "organizer"
	if o.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(o.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	if strings.TrimSpace(o.cfg.Library.MoviesDir) == "" && strings.TrimSpace(o.cfg.Library.TVDir) == "" {
		return stage.Unhealthy(name, "library subdirectories not configured")
	}
	if o.plex == nil {
		return stage.Unhealthy(name, "plex client unavailable")
	}
	return stage.Healthy(name)
}
