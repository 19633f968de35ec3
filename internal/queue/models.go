package queue

import "time"

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusIdentifying Status = "identifying"
	StatusIdentified  Status = "identified"
	StatusRipping     Status = "ripping"
	StatusRipped      Status = "ripped"
	StatusEncoding    Status = "encoding"
	StatusEncoded     Status = "encoded"
	StatusOrganizing  Status = "organizing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusReview      Status = "review"
)

var processingStatuses = map[Status]struct{}{
	StatusIdentifying: {},
	StatusRipping:     {},
	StatusEncoding:    {},
	StatusOrganizing:  {},
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Review     int
	Completed  int
}

// Item represents a queue item persisted in SQLite.
type Item struct {
	ID              int64
	SourcePath      string
	DiscTitle       string
	Status          Status
	MediaInfoJSON   string
	RippedFile      string
	EncodedFile     string
	FinalFile       string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string

	// ProgressBytesCopied and ProgressTotalBytes track file-copy progress
	// during the organize stage, when a move or copy spans a large file.
	ProgressBytesCopied int64
	ProgressTotalBytes  int64

	RipSpecData     string
	DiscFingerprint string
	MetadataJSON    string
	LastHeartbeat   *time.Time
	NeedsReview     bool
	ReviewReason    string

	// BackgroundLogPath points at the per-item log file a stage streams
	// its subprocess output into while running in the background.
	BackgroundLogPath string

	// ActiveEpisodeKey identifies the TV episode currently being ripped,
	// encoded, or organized when an item represents a multi-episode disc.
	ActiveEpisodeKey string

	// EncodingDetailsJSON holds a serialized encodingstate snapshot so an
	// interrupted encode can resume from its last known drapto progress.
	EncodingDetailsJSON string

	// DraptoPresetProfile records the drapto preset selected for the item's
	// encode, surfaced in status output and diagnostics.
	DraptoPresetProfile string
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	_, ok := processingStatuses[i.Status]
	return ok
}
