package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"spindle/internal/config"
	"spindle/internal/logging"
	"spindle/internal/notifications"
	"spindle/internal/queue"
	"spindle/internal/stage"
)

// StageHandler describes the narrow contract the manager needs from each stage.
type StageHandler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) stage.Health
}

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Identifier StageHandler
	Ripper     StageHandler
	Encoder    StageHandler
	Organizer  StageHandler
}

type pipelineStage struct {
	name             string
	handler          StageHandler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
	// backgrounded marks stages whose progress is reported through a dedicated
	// per-item log file (encode/organize) rather than the daemon's main log.
	backgrounded bool
	// notifyOnStart marks the stage whose start should trigger a "queue started"
	// notification; only the item's first stage does.
	notifyOnStart bool
}

// lane labels a stage for logging and CLI filtering (`spindle show --lane`).
// It carries no concurrency meaning: every stage runs on the single work pump.
func (p pipelineStage) lane() string {
	if p.backgrounded {
		return "background"
	}
	return "main"
}

type loggerAware interface {
	SetLogger(*slog.Logger)
}

// Manager coordinates queue processing through a single cooperative work pump:
// it repeatedly selects the next processable item and drives it through one
// stage before looping, never running two stages concurrently.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service
	logHub       *logging.StreamHub
	heartbeat    *HeartbeatMonitor
	bgLogger     *BackgroundLogger

	stages             []pipelineStage
	statusOrder        []queue.Status
	stageByStart       map[queue.Status]pipelineStage
	processingStatuses []queue.Status

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item

	queueActive bool
	queueStart  time.Time
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithOptions(cfg, store, logger, notifications.NewService(cfg), nil)
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	return NewManagerWithOptions(cfg, store, logger, notifier, nil)
}

// NewManagerWithOptions constructs a workflow manager with full configuration.
func NewManagerWithOptions(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service, logHub *logging.StreamHub) *Manager {
	heartbeatInterval := time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	heartbeatTimeout := time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		logHub:       logHub,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat:    NewHeartbeatMonitor(store, logger, heartbeatInterval, heartbeatTimeout),
		bgLogger:     NewBackgroundLogger(cfg, logHub),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run,
// in the fixed order the work pump always evaluates them: identifier, ripper,
// encoder, organizer.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage

	if set.Identifier != nil {
		stages = append(stages, pipelineStage{
			name:             "identifier",
			handler:          set.Identifier,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusIdentifying,
			doneStatus:       queue.StatusIdentified,
			notifyOnStart:    true,
		})
	}
	if set.Ripper != nil {
		stages = append(stages, pipelineStage{
			name:             "ripper",
			handler:          set.Ripper,
			startStatus:      queue.StatusIdentified,
			processingStatus: queue.StatusRipping,
			doneStatus:       queue.StatusRipped,
		})
	}
	if set.Encoder != nil {
		stages = append(stages, pipelineStage{
			name:             "encoder",
			handler:          set.Encoder,
			startStatus:      queue.StatusRipped,
			processingStatus: queue.StatusEncoding,
			doneStatus:       queue.StatusEncoded,
			backgrounded:     true,
		})
	}
	if set.Organizer != nil {
		stages = append(stages, pipelineStage{
			name:             "organizer",
			handler:          set.Organizer,
			startStatus:      queue.StatusEncoded,
			processingStatus: queue.StatusOrganizing,
			doneStatus:       queue.StatusCompleted,
			backgrounded:     true,
		})
	}

	stageByStart := make(map[queue.Status]pipelineStage, len(stages))
	statusOrder := make([]queue.Status, 0, len(stages))
	var processingStatuses []queue.Status
	seenProcessing := make(map[queue.Status]struct{})
	for _, stg := range stages {
		stageByStart[stg.startStatus] = stg
		statusOrder = append(statusOrder, stg.startStatus)
		if stg.processingStatus != "" {
			if _, ok := seenProcessing[stg.processingStatus]; !ok {
				processingStatuses = append(processingStatuses, stg.processingStatus)
				seenProcessing[stg.processingStatus] = struct{}{}
			}
		}
	}

	m.mu.Lock()
	m.stages = stages
	m.statusOrder = statusOrder
	m.stageByStart = stageByStart
	m.processingStatuses = processingStatuses
	m.mu.Unlock()
}

func (m *Manager) stageForStatus(status queue.Status) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stg, ok := m.stageByStart[status]
	return stg, ok
}

func (m *Manager) runnerLogger() *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return m.logger.With(logging.String("component", "workflow-runner"))
}
