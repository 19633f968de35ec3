package encoding

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
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
	"spindle/internal/services/drapto"
	"spindle/internal/stage"
)

// Encoder manages Drapto encoding of ripped files.
type Encoder struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	client   drapto.Client
	notifier notifications.Service
}

const (
	minEncodedFileSizeBytes = 5 * 1024 * 1024
)

var encodeProbe = ffprobe.Inspect

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (e *Encoder) encodeSource(ctx context.Context, item *queue.Item, sourcePath, encodedDir, label, episodeKey string, episodeIndex, episodeCount int, presetProfile string, logger *slog.Logger) (string, error) {
	if e.client == nil {
		return "", nil
	}
	jobLogger := logger
	episodeKey = strings.ToLower(strings.TrimSpace(episodeKey))
	if strings.TrimSpace(label) != "" || episodeKey != "" {
		jobLogger = jobLogger.With(
			logging.String(logging.FieldEpisodeKey, episodeKey),
			logging.String(logging.FieldEpisodeLabel, strings.TrimSpace(label)),
			logging.Int(logging.FieldEpisodeIndex, episodeIndex),
			logging.Int(logging.FieldEpisodeCount, episodeCount),
		)
	}
	jobLogger.Info(
		"launching drapto encode",
		logging.String("command", e.draptoCommand(sourcePath, encodedDir, presetProfile)),
		logging.String("input", sourcePath),
		logging.String("job", strings.TrimSpace(label)),
	)
	snapshot := loadEncodingSnapshot(jobLogger, item.EncodingDetailsJSON)
	snapshot.JobLabel = strings.TrimSpace(label)
	snapshot.EpisodeKey = episodeKey
	snapshot.EpisodeIndex = episodeIndex
	snapshot.EpisodeCount = episodeCount
	if raw, err := snapshot.Marshal(); err != nil {
		jobLogger.Warn("failed to marshal encoding snapshot", logging.Error(err))
	} else if raw != "" {
		copy := *item
		copy.EncodingDetailsJSON = raw
		copy.ActiveEpisodeKey = episodeKey
		if err := e.store.UpdateProgress(ctx, &copy); err != nil {
			jobLogger.Warn("failed to persist encoding job context", logging.Error(err))
		} else {
			*item = copy
		}
	}
	const progressPersistInterval = 2 * time.Second
	var lastPersisted time.Time
	progress := func(update drapto.ProgressUpdate) {
		copy := *item
		changed := false
		message := progressMessageText(update)
		if message != "" && strings.TrimSpace(label) != "" && episodeIndex > 0 && episodeCount > 0 {
			message = fmt.Sprintf("%s (%d/%d) — %s", strings.TrimSpace(label), episodeIndex, episodeCount, message)
		} else if message != "" && strings.TrimSpace(label) != "" {
			message = fmt.Sprintf("%s — %s", strings.TrimSpace(label), message)
		}
		if applyDraptoUpdate(&snapshot, update, message) {
			if raw, err := snapshot.Marshal(); err != nil {
				jobLogger.Warn("failed to marshal encoding snapshot", logging.Error(err))
			} else {
				copy.EncodingDetailsJSON = raw
			}
			changed = true
		}
		if stage := strings.TrimSpace(update.Stage); stage != "" && stage != copy.ProgressStage {
			copy.ProgressStage = stage
			changed = true
		}
		if update.Percent >= 0 && update.Percent != copy.ProgressPercent {
			copy.ProgressPercent = update.Percent
			changed = true
		}
		if message != "" && message != strings.TrimSpace(copy.ProgressMessage) {
			copy.ProgressMessage = message
			changed = true
		}
		if !changed {
			return
		}
		if update.Type == drapto.EventTypeEncodingProgress {
			now := time.Now()
			if !lastPersisted.IsZero() && now.Sub(lastPersisted) < progressPersistInterval {
				*item = copy
				return
			}
			lastPersisted = now
		}
		if err := e.store.UpdateProgress(ctx, &copy); err != nil {
			jobLogger.Warn("failed to persist encoding progress", logging.Error(err))
		}
		*item = copy
	}
	progressSampler := logging.NewProgressSampler(5)
	logProgressEvent := func(update drapto.ProgressUpdate) {
		stage := strings.TrimSpace(update.Stage)
		raw := strings.TrimSpace(update.Message)
		summary := progressMessageText(update)
		if !progressSampler.ShouldLog(update.Percent, stage, raw) {
			return
		}
		attrs := []logging.Attr{logging.String("job", label)}
		if update.Percent >= 0 {
			attrs = append(attrs, logging.Float64("progress_percent", update.Percent))
		}
		if stage != "" {
			attrs = append(attrs, logging.String("progress_stage", stage))
		}
		if summary != "" {
			attrs = append(attrs, logging.String("progress_message", summary))
		}
		if update.ETA > 0 {
			attrs = append(attrs, logging.Duration("progress_eta", update.ETA))
		}
		if strings.TrimSpace(update.Bitrate) != "" {
			attrs = append(attrs, logging.String("progress_bitrate", strings.TrimSpace(update.Bitrate)))
		}
		jobLogger.Info("drapto progress", logging.Args(attrs...)...)
	}

	progressLogger := func(update drapto.ProgressUpdate) {
		persist := false
		switch update.Type {
		case drapto.EventTypeHardware:
			logDraptoHardware(jobLogger, label, update.Hardware)
			persist = true
		case drapto.EventTypeInitialization:
			logDraptoVideo(jobLogger, label, update.Video)
			persist = true
		case drapto.EventTypeCropResult:
			logDraptoCrop(jobLogger, label, update.Crop)
			persist = true
		case drapto.EventTypeEncodingConfig:
			logDraptoEncodingConfig(jobLogger, label, update.EncodingConfig)
			persist = true
		case drapto.EventTypeEncodingStarted:
			logDraptoEncodingStart(jobLogger, label, update.TotalFrames)
			persist = true
		case drapto.EventTypeValidation:
			logDraptoValidation(jobLogger, label, update.Validation)
			persist = true
		case drapto.EventTypeEncodingComplete:
			logDraptoEncodingResult(jobLogger, label, update.Result)
			persist = true
		case drapto.EventTypeOperationComplete:
			logDraptoOperation(jobLogger, label, update.OperationComplete)
		case drapto.EventTypeWarning:
			logDraptoWarning(jobLogger, label, update.Warning)
			persist = true
		case drapto.EventTypeError:
			logDraptoError(jobLogger, label, update.Error)
			persist = true
		case drapto.EventTypeBatchStarted:
			logDraptoBatchStart(jobLogger, label, update.BatchStart)
		case drapto.EventTypeFileProgress:
			logDraptoFileProgress(jobLogger, label, update.FileProgress)
		case drapto.EventTypeBatchComplete:
			logDraptoBatchSummary(jobLogger, label, update.BatchSummary)
		case drapto.EventTypeStageProgress, drapto.EventTypeEncodingProgress, drapto.EventTypeUnknown:
			logProgressEvent(update)
			persist = true
		default:
			if strings.TrimSpace(update.Message) != "" {
				attrs := []logging.Attr{
					logging.String("job", label),
					logging.String("drapto_event_type", string(update.Type)),
					logging.String("message", strings.TrimSpace(update.Message)),
				}
				jobLogger.Info("drapto event", logging.Args(attrs...)...)
			}
		}
		if persist {
			progress(update)
		}
	}

	path, err := e.client.Encode(ctx, sourcePath, encodedDir, drapto.EncodeOptions{
		Progress:      progressLogger,
		PresetProfile: presetProfile,
		Quality:       e.qualityForProfile(presetProfile),
	})
	if err != nil {
		return "", services.Wrap(
			services.ErrExternalTool,
			"encoding",
			"drapto encode",
			"Drapto encoding failed; inspect the encoding log output and confirm the binary path in config",
			err,
		)
	}
	return path, nil
}

func NewEncoder(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Encoder {
	client := drapto.NewCLI(
		drapto.WithBinary(cfg.DraptoBinary()),
	)
	return NewEncoderWithDependencies(cfg, store, logger, client, notifications.NewService(cfg))
}

// NewEncoderWithDependencies allows injecting custom dependencies (used for tests).
func NewEncoderWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client drapto.Client, notifier notifications.Service) *Encoder {
	enc := &Encoder{
		store:    store,
		cfg:      cfg,
		client:   client,
		notifier: notifier,
	}
	enc.SetLogger(logger)
	return enc
}

// SetLogger updates the encoder's logging destination while preserving component labeling.
func (e *Encoder) SetLogger(logger *slog.Logger) {
	e.logger = logging.NewComponentLogger(logger, "encoder")
}

func (e *Encoder) Prepare(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, e.logger)
	item.InitProgress("Encoding", "Starting Drapto encoding")
	item.DraptoPresetProfile = ""
	logger.Debug("starting encoding preparation")
	return nil
}

func (e *Encoder) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, e.logger)
	stageStart := time.Now()

	env, err := ripspec.Parse(item.RipSpecData)
	if err != nil {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"parse rip spec",
			"Rip specification missing or invalid; rerun identification",
			err,
		)
	}

	logger.Debug("starting encoding")
	if strings.TrimSpace(item.RippedFile) == "" {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate inputs",
			"No ripped file available for encoding; ensure the ripping stage completed successfully",
			nil,
		)
	}

	stagingRoot := item.StagingRoot(e.cfg.Paths.StagingDir)
	if stagingRoot == "" {
		stagingRoot = filepath.Join(strings.TrimSpace(e.cfg.Paths.StagingDir), fmt.Sprintf("queue-%d", item.ID))
	}
	encodedDir := filepath.Join(stagingRoot, "encoded")
	if err := e.cleanupEncodedDir(logger, encodedDir); err != nil {
		return err
	}
	if err := os.MkdirAll(encodedDir, 0o755); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"ensure encoded dir",
			"Failed to create encoded directory; set staging_dir to a writable path",
			err,
		)
	}
	logger.Info("prepared encoding directory", logging.String("encoded_dir", encodedDir))

	jobs, err := buildEncodeJobs(env, encodedDir)
	if err != nil {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"plan encode jobs",
			"Unable to map ripped episodes to encoding jobs",
			err,
		)
	}

	sampleSource := strings.TrimSpace(item.RippedFile)
	if len(jobs) > 0 {
		sampleSource = strings.TrimSpace(jobs[0].Source)
	}
	presetProfile := e.qualityProfileForSource(ctx, sampleSource, logger)
	item.DraptoPresetProfile = presetProfile

	encodedPaths := make([]string, 0, maxInt(1, len(jobs)))
	if len(jobs) > 0 {
		for idx, job := range jobs {
			label := fmt.Sprintf("S%02dE%02d", job.Episode.Season, job.Episode.Episode)
			item.ActiveEpisodeKey = strings.ToLower(strings.TrimSpace(job.Episode.Key))
			if item.ActiveEpisodeKey != "" {
				item.ProgressMessage = fmt.Sprintf("Starting encode %s (%d/%d)", label, idx+1, len(jobs))
				item.ProgressPercent = 0
				if err := e.store.UpdateProgress(ctx, item); err != nil {
					logger.Warn("failed to persist encoding job start", logging.Error(err))
				}
			}
			path, err := e.encodeSource(ctx, item, job.Source, encodedDir, label, job.Episode.Key, idx+1, len(jobs), presetProfile, logger)
			if err != nil {
				return err
			}
			finalPath, err := ensureEncodedOutput(path, job.Output, job.Source)
			if err != nil {
				return err
			}
			env.Assets.AddAsset("encoded", ripspec.Asset{EpisodeKey: job.Episode.Key, TitleID: job.Episode.TitleID, Path: finalPath})
			encodedPaths = append(encodedPaths, finalPath)

			// Persist rip spec after each episode so API consumers can surface
			// per-episode progress while the encoding stage is still running.
			if encoded, err := env.Encode(); err == nil {
				copy := *item
				copy.RipSpecData = encoded
				if err := e.store.Update(ctx, &copy); err != nil {
					logger.Warn("failed to persist rip spec after episode encode", logging.Error(err))
				} else {
					*item = copy
				}
			} else {
				logger.Warn("failed to encode rip spec after episode encode", logging.Error(err))
			}
		}
	} else {
		label := strings.TrimSpace(item.DiscTitle)
		if label == "" {
			label = "Disc"
		}
		item.ActiveEpisodeKey = ""
		path, err := e.encodeSource(ctx, item, item.RippedFile, encodedDir, label, "", 0, 0, presetProfile, logger)
		if err != nil {
			return err
		}
		finalTarget := filepath.Join(encodedDir, deriveEncodedFilename(item.RippedFile))
		finalPath, err := ensureEncodedOutput(path, finalTarget, item.RippedFile)
		if err != nil {
			return err
		}
		encodedPaths = append(encodedPaths, finalPath)
	}

	if len(encodedPaths) == 0 {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"locate encoded outputs",
			"No encoded artifacts were produced",
			nil,
		)
	}

	for _, path := range encodedPaths {
		if err := e.validateEncodedArtifact(ctx, path, stageStart); err != nil {
			return err
		}
	}

	if encoded, err := env.Encode(); err == nil {
		item.RipSpecData = encoded
	} else {
		logger.Warn("failed to encode rip spec after encoding", logging.Error(err))
	}

	item.EncodedFile = encodedPaths[0]
	item.ProgressStage = "Encoded"
	item.ProgressPercent = 100
	item.ActiveEpisodeKey = ""
	if len(encodedPaths) > 1 {
		item.ProgressMessage = fmt.Sprintf("Encoding completed (%d episodes)", len(encodedPaths))
	} else if e.client != nil {
		item.ProgressMessage = "Encoding completed"
	} else {
		item.ProgressMessage = "Encoded placeholder artifact"
	}
	if presetProfile != "" {
		item.ProgressMessage = fmt.Sprintf("%s – quality profile %s", item.ProgressMessage, presetProfile)
	}
	// Calculate resource consumption metrics
	var totalInputBytes, totalOutputBytes int64
	for _, path := range encodedPaths {
		if info, err := os.Stat(path); err == nil {
			totalOutputBytes += info.Size()
		}
	}
	if info, err := os.Stat(strings.TrimSpace(item.RippedFile)); err == nil {
		totalInputBytes = info.Size()
	}
	var compressionRatio float64
	if totalInputBytes > 0 {
		compressionRatio = float64(totalOutputBytes) / float64(totalInputBytes) * 100
	}

	if e.notifier != nil {
		if err := e.notifier.Publish(ctx, notifications.EventEncodingCompleted, notifications.Payload{
			"discTitle":   item.DiscTitle,
			"placeholder": e.client == nil,
			"ratio":       compressionRatio,
			"inputBytes":  totalInputBytes,
			"outputBytes": totalOutputBytes,
			"files":       len(encodedPaths),
			"preset":      strings.TrimSpace(item.DraptoPresetProfile),
		}); err != nil {
			logger.Debug("encoding notification failed", logging.Error(err))
		}
	}

	// Log stage summary with timing and resource metrics
	summaryAttrs := []logging.Attr{
		logging.String("encoded_file", item.EncodedFile),
		logging.Duration("stage_duration", time.Since(stageStart)),
		logging.Int64("input_bytes", totalInputBytes),
		logging.Int64("output_bytes", totalOutputBytes),
		logging.Float64("compression_ratio_percent", compressionRatio),
		logging.Int("files_encoded", len(encodedPaths)),
		logging.String("preset_profile", strings.TrimSpace(item.DraptoPresetProfile)),
	}
	logger.Info("encoding stage summary", logging.Args(summaryAttrs...)...)

	return nil
}

func (e *Encoder) cleanupEncodedDir(logger *slog.Logger, encodedDir string) error {
	encodedDir = strings.TrimSpace(encodedDir)
	if encodedDir == "" {
		return nil
	}
	info, err := os.Stat(encodedDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"inspect encoded dir",
			"Failed to inspect previous encoded artifacts",
			err,
		)
	}
	if !info.IsDir() {
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"inspect encoded dir",
			fmt.Sprintf("Expected encoded path %q to be a directory", encodedDir),
			nil,
		)
	}
	if err := os.RemoveAll(encodedDir); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"remove stale artifacts",
			"Failed to remove previous encoded outputs", err,
		)
	}
	if logger != nil {
		logger.Info("removed stale encoded artifacts", logging.String("encoded_dir", encodedDir))
	}
	return nil
}

// HealthCheck verifies encoding dependencies for Drapto.
func (e *Encoder) HealthCheck(ctx context.Context) stage.Health {
	const name = "encoder"
	if e.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(e.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if e.client == nil {
		return stage.Unhealthy(name, "drapto client unavailable")
	}
	binary := strings.TrimSpace(e.cfg.DraptoBinary())
	if binary == "" {
		return stage.Unhealthy(name, "drapto binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("drapto binary %q not found", binary))
	}
	return stage.Healthy(name)
}

func formatValidationStatus(passed bool) string {
	if passed {
		return "ok"
	}
	return "failed"
}

func formatBytes(value int64) string {
	const (
		kiB = 1024
		miB = kiB * 1024
		giB = miB * 1024
	)
	switch {
	case value >= giB:
		return fmt.Sprintf("%.2f GiB", float64(value)/float64(giB))
	case value >= miB:
		return fmt.Sprintf("%.2f MiB", float64(value)/float64(miB))
	case value >= kiB:
		return fmt.Sprintf("%.2f KiB", float64(value)/float64(kiB))
	default:
		return fmt.Sprintf("%d B", value)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(strings.TrimSpace(path))
	return err == nil && !info.IsDir()
}

func (e *Encoder) validateEncodedArtifact(ctx context.Context, path string, startedAt time.Time) error {
	logger := logging.WithContext(ctx, e.logger)
	clean := strings.TrimSpace(path)
	if clean == "" {
		logger.Error("encoding validation failed", logging.String("reason", "empty path"))
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate output",
			"Encoding produced an empty file path",
			nil,
		)
	}
	info, err := os.Stat(clean)
	if err != nil {
		logger.Error("encoding validation failed", logging.String("reason", "stat failure"), logging.Error(err))
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate output",
			"Failed to stat encoded file",
			err,
		)
	}
	if info.IsDir() {
		logger.Error("encoding validation failed", logging.String("reason", "path is directory"), logging.String("encoded_path", clean))
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate output",
			"Encoded artifact points to a directory",
			nil,
		)
	}
	if info.Size() < minEncodedFileSizeBytes {
		logger.Error(
			"encoding validation failed",
			logging.String("reason", "file too small"),
			logging.Int64("size_bytes", info.Size()),
		)
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate output",
			fmt.Sprintf("Encoded file %q is unexpectedly small (%d bytes)", clean, info.Size()),
			nil,
		)
	}

	binary := "ffprobe"
	if e.cfg != nil {
		binary = e.cfg.FFprobeBinary()
	}
	probe, err := encodeProbe(ctx, binary, clean)
	if err != nil {
		logger.Error("encoding validation failed", logging.String("reason", "ffprobe"), logging.Error(err))
		return services.Wrap(
			services.ErrExternalTool,
			"encoding",
			"ffprobe validation",
			"Failed to inspect encoded file with ffprobe",
			err,
		)
	}
	if probe.VideoStreamCount() == 0 {
		logger.Error("encoding validation failed", logging.String("reason", "no video stream"))
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate video stream",
			"Encoded file does not contain a video stream",
			nil,
		)
	}
	if probe.AudioStreamCount() == 0 {
		logger.Error("encoding validation failed", logging.String("reason", "no audio stream"))
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate audio stream",
			"Encoded file does not contain an audio stream",
			nil,
		)
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		logger.Error("encoding validation failed", logging.String("reason", "invalid duration"))
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate duration",
			"Encoded file duration could not be determined",
			nil,
		)
	}

	logger.Debug(
		"encoding validation succeeded",
		logging.String("encoded_file", clean),
		logging.Duration("elapsed", time.Since(startedAt)),
		logging.Group("ffprobe",
			logging.Float64("duration_seconds", duration),
			logging.Int("video_streams", probe.VideoStreamCount()),
			logging.Int("audio_streams", probe.AudioStreamCount()),
		),
	)
	return nil
}

func (e *Encoder) draptoBinaryName() string {
	if e == nil || e.cfg == nil {
		return "drapto"
	}
	binary := strings.TrimSpace(e.cfg.DraptoBinary())
	if binary == "" {
		return "drapto"
	}
	return binary
}

func (e *Encoder) draptoCommand(inputPath, outputDir, presetProfile string) string {
	binary := e.draptoBinaryName()
	parts := []string{
		fmt.Sprintf("%s encode", binary),
		fmt.Sprintf("--input %q", strings.TrimSpace(inputPath)),
		fmt.Sprintf("--output %q", strings.TrimSpace(outputDir)),
		"--responsive",
		"--no-log",
	}
	if profile := strings.TrimSpace(presetProfile); profile != "" && !strings.EqualFold(profile, "default") {
		parts = append(parts, fmt.Sprintf("--drapto-preset %s", profile))
	}
	parts = append(parts, "--progress-json")
	return strings.Join(parts, " ")
}

// qualityProfileForSource inspects the sample source and returns the resolution
// tier ("sd", "hd", or "uhd") used to pick the matching entry from the Drapto
// quality map. Detection failures fall back to "hd".
func (e *Encoder) qualityProfileForSource(ctx context.Context, sampleSource string, logger *slog.Logger) string {
	const defaultProfile = "hd"
	sampleSource = strings.TrimSpace(sampleSource)
	if sampleSource == "" {
		return defaultProfile
	}
	binary := "ffprobe"
	if e.cfg != nil {
		binary = e.cfg.FFprobeBinary()
	}
	result, err := encodeProbe(ctx, binary, sampleSource)
	if err != nil {
		logger.Warn("resolution detection failed; using default quality profile",
			logging.String("sample_source", sampleSource),
			logging.Error(err),
			logging.String(logging.FieldEventType, "quality_profile_detection_failed"),
			logging.String(logging.FieldErrorHint, "check ffprobe availability and sample file path"),
		)
		return defaultProfile
	}
	width := 0
	for _, stream := range result.Streams {
		if !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		if stream.Width > width {
			width = stream.Width
		}
	}
	switch {
	case width >= 3200:
		return "uhd"
	case width > 0 && width < 1200:
		return "sd"
	default:
		return defaultProfile
	}
}

// qualityForProfile maps a resolution tier to the configured Drapto CRF-style
// quality target.
func (e *Encoder) qualityForProfile(profile string) int {
	if e.cfg == nil {
		return 0
	}
	switch profile {
	case "sd":
		return e.cfg.Drapto.QualitySD
	case "uhd":
		return e.cfg.Drapto.QualityUHD
	default:
		return e.cfg.Drapto.QualityHD
	}
}
