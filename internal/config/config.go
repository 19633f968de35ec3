package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config encapsulates all configuration values for Spindle, grouped by concern.
type Config struct {
	Paths         Paths         `toml:"-"`
	TMDB          TMDB          `toml:"-"`
	Plex          Plex          `toml:"-"`
	Library       Library       `toml:"-"`
	Notifications Notifications `toml:"-"`
	MakeMKV       MakeMKV       `toml:"-"`
	Drapto        Drapto        `toml:"-"`
	Workflow      Workflow      `toml:"-"`
	Analyzer      Analyzer      `toml:"-"`
	Logging       Logging       `toml:"-"`
}

// Paths groups filesystem locations used throughout the daemon.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
	ReviewDir  string `toml:"review_dir"`
	APIBind    string `toml:"api_bind"`
}

// TMDB groups metadata-client settings.
type TMDB struct {
	APIKey              string  `toml:"tmdb_api_key"`
	BaseURL             string  `toml:"tmdb_base_url"`
	Language            string  `toml:"tmdb_language"`
	ConfidenceThreshold float64 `toml:"tmdb_confidence_threshold"`
}

// Plex groups media-server integration settings.
type Plex struct {
	Enabled bool   `toml:"plex_link_enabled"`
	URL     string `toml:"plex_url"`
	Token   string `toml:"plex_token"`
}

// Library groups library-organization settings.
type Library struct {
	MoviesDir         string `toml:"movies_dir"`
	TVDir             string `toml:"tv_dir"`
	MoviesLibrary     string `toml:"movies_library"`
	TVLibrary         string `toml:"tv_library"`
	OverwriteExisting bool   `toml:"overwrite_existing_library_files"`
}

// Notifications groups ntfy webhook settings.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"ntfy_request_timeout"`
	Identification     bool   `toml:"notify_identification"`
	Rip                bool   `toml:"notify_rip"`
	Encoding           bool   `toml:"notify_encoding"`
	Organization       bool   `toml:"notify_organization"`
	Queue              bool   `toml:"notify_queue"`
	Review             bool   `toml:"notify_review"`
	Errors             bool   `toml:"notify_errors"`
	MinRipSeconds      int    `toml:"notify_min_rip_seconds"`
	QueueMinItems      int    `toml:"notify_queue_min_items"`
	DedupWindowSeconds int    `toml:"notify_dedup_window_seconds"`
}

// MakeMKV groups ripper settings.
type MakeMKV struct {
	OpticalDrive string `toml:"optical_drive"`
	RipTimeout   int    `toml:"makemkv_rip_timeout"`
	InfoTimeout  int    `toml:"makemkv_info_timeout"`
}

// Drapto groups encoder settings.
type Drapto struct {
	Preset             int     `toml:"drapto_preset"`
	QualitySD          int     `toml:"drapto_quality_sd"`
	QualityHD          int     `toml:"drapto_quality_hd"`
	QualityUHD         int     `toml:"drapto_quality_uhd"`
	EncodeTimeout       int     `toml:"drapto_encode_timeout"`
}

// Workflow groups orchestrator tuning knobs.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"workflow_heartbeat_interval"`
	HeartbeatTimeout   int `toml:"workflow_heartbeat_timeout"`
	DiscMonitorTimeout int `toml:"disc_monitor_timeout"`
}

// Analyzer groups Disc Analyzer decision toggles.
type Analyzer struct {
	IncludeAllEnglishAudio     bool   `toml:"include_all_english_audio"`
	IncludeCommentaryTracks    bool   `toml:"include_commentary_tracks"`
	IncludeAlternateAudio      bool   `toml:"include_alternate_audio"`
	IncludeMovieExtras         bool   `toml:"include_movie_extras"`
	MaxExtrasToRip             int    `toml:"max_extras_to_rip"`
	MaxExtrasDurationSeconds   int    `toml:"max_extras_duration_seconds"`
	TVEpisodeMinDurationSeconds int   `toml:"tv_episode_min_duration_seconds"`
	TVEpisodeMaxDurationSeconds int   `toml:"tv_episode_max_duration_seconds"`
	MovieMinDurationSeconds    int    `toml:"movie_min_duration_seconds"`
	AllowShortContent          bool   `toml:"allow_short_content"`
	EpisodeMappingStrategy     string `toml:"episode_mapping_strategy"`
	EnableEnhancedDiscMetadata bool   `toml:"enable_enhanced_disc_metadata"`
	SeriesCacheTTLDays         int    `toml:"series_cache_ttl_days"`
}

// Logging groups log-output settings.
type Logging struct {
	Format         string            `toml:"log_format"`
	Level          string            `toml:"log_level"`
	RetentionDays  int               `toml:"log_retention_days"`
	StageOverrides map[string]string `toml:"log_stage_overrides"`
}

const (
	defaultStagingDir     = "~/.local/share/spindle/staging"
	defaultLibraryDir     = "~/library"
	defaultLogDir         = "~/.local/share/spindle/logs"
	defaultReviewDir      = "~/review"
	defaultOpticalDrive   = "/dev/sr0"
	defaultMoviesDir      = "movies"
	defaultTVDir          = "tv"
	defaultTMDBLanguage   = "en-US"
	defaultTMDBBaseURL    = "https://api.themoviedb.org/3"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultHeartbeatSecs  = 15
	defaultHeartbeatTimeo = 120
	defaultAPIBind        = "127.0.0.1:7487"
	defaultLogRetention   = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			ReviewDir:  defaultReviewDir,
			APIBind:    defaultAPIBind,
		},
		TMDB: TMDB{
			Language:            defaultTMDBLanguage,
			BaseURL:             defaultTMDBBaseURL,
			ConfidenceThreshold: 0.8,
		},
		Plex: Plex{
			Enabled: false,
		},
		Library: Library{
			MoviesDir:     defaultMoviesDir,
			TVDir:         defaultTVDir,
			MoviesLibrary: "Movies",
			TVLibrary:     "TV Shows",
		},
		Notifications: Notifications{
			RequestTimeout:     10,
			Identification:     true,
			Rip:                true,
			Encoding:           true,
			Organization:       true,
			Queue:              true,
			Review:             true,
			Errors:             true,
			MinRipSeconds:      120,
			QueueMinItems:      2,
			DedupWindowSeconds: 600,
		},
		MakeMKV: MakeMKV{
			OpticalDrive: defaultOpticalDrive,
			RipTimeout:   3600,
			InfoTimeout:  300,
		},
		Drapto: Drapto{
			Preset:        4,
			QualitySD:     23,
			QualityHD:     25,
			QualityUHD:    27,
			EncodeTimeout: 28800,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultHeartbeatSecs,
			HeartbeatTimeout:   defaultHeartbeatTimeo,
			DiscMonitorTimeout: 5,
		},
		Analyzer: Analyzer{
			IncludeAllEnglishAudio:      true,
			IncludeCommentaryTracks:     false,
			IncludeAlternateAudio:       false,
			IncludeMovieExtras:          false,
			MaxExtrasToRip:              5,
			MaxExtrasDurationSeconds:    1800,
			TVEpisodeMinDurationSeconds: 900,
			TVEpisodeMaxDurationSeconds: 4800,
			MovieMinDurationSeconds:     3000,
			AllowShortContent:           false,
			EpisodeMappingStrategy:      "sequential",
			EnableEnhancedDiscMetadata:  true,
			SeriesCacheTTLDays:          30,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetention,
		},
	}
}

// tomlDocument mirrors Config with flat field names so go-toml/v2 can decode
// a single-level TOML file into the nested groups above.
type tomlDocument struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
	ReviewDir  string `toml:"review_dir"`
	APIBind    string `toml:"api_bind"`

	TMDBAPIKey              string  `toml:"tmdb_api_key"`
	TMDBBaseURL             string  `toml:"tmdb_base_url"`
	TMDBLanguage            string  `toml:"tmdb_language"`
	TMDBConfidenceThreshold float64 `toml:"tmdb_confidence_threshold"`

	PlexLinkEnabled bool   `toml:"plex_link_enabled"`
	PlexURL         string `toml:"plex_url"`
	PlexToken       string `toml:"plex_token"`

	MoviesDir                     string `toml:"movies_dir"`
	TVDir                         string `toml:"tv_dir"`
	MoviesLibrary                 string `toml:"movies_library"`
	TVLibrary                     string `toml:"tv_library"`
	OverwriteExistingLibraryFiles bool   `toml:"overwrite_existing_library_files"`

	NtfyTopic          string `toml:"ntfy_topic"`
	NtfyRequestTimeout int    `toml:"ntfy_request_timeout"`
	NotifyIdentification *bool `toml:"notify_identification"`
	NotifyRip            *bool `toml:"notify_rip"`
	NotifyEncoding       *bool `toml:"notify_encoding"`
	NotifyOrganization   *bool `toml:"notify_organization"`
	NotifyQueue          *bool `toml:"notify_queue"`
	NotifyReview         *bool `toml:"notify_review"`
	NotifyErrors         *bool `toml:"notify_errors"`
	NotifyMinRipSeconds        int `toml:"notify_min_rip_seconds"`
	NotifyQueueMinItems        int `toml:"notify_queue_min_items"`
	NotifyDedupWindowSeconds   int `toml:"notify_dedup_window_seconds"`

	OpticalDrive       string `toml:"optical_drive"`
	MakeMKVRipTimeout  int    `toml:"makemkv_rip_timeout"`
	MakeMKVInfoTimeout int    `toml:"makemkv_info_timeout"`

	DraptoPreset        int `toml:"drapto_preset"`
	DraptoQualitySD     int `toml:"drapto_quality_sd"`
	DraptoQualityHD     int `toml:"drapto_quality_hd"`
	DraptoQualityUHD    int `toml:"drapto_quality_uhd"`
	DraptoEncodeTimeout int `toml:"drapto_encode_timeout"`

	QueuePollInterval         int `toml:"queue_poll_interval"`
	ErrorRetryInterval        int `toml:"error_retry_interval"`
	WorkflowHeartbeatInterval int `toml:"workflow_heartbeat_interval"`
	WorkflowHeartbeatTimeout  int `toml:"workflow_heartbeat_timeout"`
	DiscMonitorTimeout        int `toml:"disc_monitor_timeout"`

	IncludeAllEnglishAudio      *bool  `toml:"include_all_english_audio"`
	IncludeCommentaryTracks     *bool  `toml:"include_commentary_tracks"`
	IncludeAlternateAudio       *bool  `toml:"include_alternate_audio"`
	IncludeMovieExtras          *bool  `toml:"include_movie_extras"`
	MaxExtrasToRip              int    `toml:"max_extras_to_rip"`
	MaxExtrasDurationSeconds    int    `toml:"max_extras_duration_seconds"`
	TVEpisodeMinDurationSeconds int    `toml:"tv_episode_min_duration_seconds"`
	TVEpisodeMaxDurationSeconds int    `toml:"tv_episode_max_duration_seconds"`
	MovieMinDurationSeconds     int    `toml:"movie_min_duration_seconds"`
	AllowShortContent           bool   `toml:"allow_short_content"`
	EpisodeMappingStrategy      string `toml:"episode_mapping_strategy"`
	EnableEnhancedDiscMetadata  *bool  `toml:"enable_enhanced_disc_metadata"`
	SeriesCacheTTLDays          int    `toml:"series_cache_ttl_days"`

	LogFormat         string            `toml:"log_format"`
	LogLevel          string            `toml:"log_level"`
	LogRetentionDays  int               `toml:"log_retention_days"`
	LogStageOverrides map[string]string `toml:"log_stage_overrides"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spindle/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		var doc tomlDocument
		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&doc); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		applyDocument(&cfg, doc)
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func applyDocument(cfg *Config, doc tomlDocument) {
	setString(&cfg.Paths.StagingDir, doc.StagingDir)
	setString(&cfg.Paths.LibraryDir, doc.LibraryDir)
	setString(&cfg.Paths.LogDir, doc.LogDir)
	setString(&cfg.Paths.ReviewDir, doc.ReviewDir)
	setString(&cfg.Paths.APIBind, doc.APIBind)

	setString(&cfg.TMDB.APIKey, doc.TMDBAPIKey)
	setString(&cfg.TMDB.BaseURL, doc.TMDBBaseURL)
	setString(&cfg.TMDB.Language, doc.TMDBLanguage)
	if doc.TMDBConfidenceThreshold != 0 {
		cfg.TMDB.ConfidenceThreshold = doc.TMDBConfidenceThreshold
	}

	cfg.Plex.Enabled = doc.PlexLinkEnabled
	setString(&cfg.Plex.URL, doc.PlexURL)
	setString(&cfg.Plex.Token, doc.PlexToken)

	setString(&cfg.Library.MoviesDir, doc.MoviesDir)
	setString(&cfg.Library.TVDir, doc.TVDir)
	setString(&cfg.Library.MoviesLibrary, doc.MoviesLibrary)
	setString(&cfg.Library.TVLibrary, doc.TVLibrary)
	cfg.Library.OverwriteExisting = doc.OverwriteExistingLibraryFiles

	setString(&cfg.Notifications.NtfyTopic, doc.NtfyTopic)
	setInt(&cfg.Notifications.RequestTimeout, doc.NtfyRequestTimeout)
	setBool(&cfg.Notifications.Identification, doc.NotifyIdentification)
	setBool(&cfg.Notifications.Rip, doc.NotifyRip)
	setBool(&cfg.Notifications.Encoding, doc.NotifyEncoding)
	setBool(&cfg.Notifications.Organization, doc.NotifyOrganization)
	setBool(&cfg.Notifications.Queue, doc.NotifyQueue)
	setBool(&cfg.Notifications.Review, doc.NotifyReview)
	setBool(&cfg.Notifications.Errors, doc.NotifyErrors)
	setInt(&cfg.Notifications.MinRipSeconds, doc.NotifyMinRipSeconds)
	setInt(&cfg.Notifications.QueueMinItems, doc.NotifyQueueMinItems)
	setInt(&cfg.Notifications.DedupWindowSeconds, doc.NotifyDedupWindowSeconds)

	setString(&cfg.MakeMKV.OpticalDrive, doc.OpticalDrive)
	setInt(&cfg.MakeMKV.RipTimeout, doc.MakeMKVRipTimeout)
	setInt(&cfg.MakeMKV.InfoTimeout, doc.MakeMKVInfoTimeout)

	setInt(&cfg.Drapto.Preset, doc.DraptoPreset)
	setInt(&cfg.Drapto.QualitySD, doc.DraptoQualitySD)
	setInt(&cfg.Drapto.QualityHD, doc.DraptoQualityHD)
	setInt(&cfg.Drapto.QualityUHD, doc.DraptoQualityUHD)
	setInt(&cfg.Drapto.EncodeTimeout, doc.DraptoEncodeTimeout)

	setInt(&cfg.Workflow.QueuePollInterval, doc.QueuePollInterval)
	setInt(&cfg.Workflow.ErrorRetryInterval, doc.ErrorRetryInterval)
	setInt(&cfg.Workflow.HeartbeatInterval, doc.WorkflowHeartbeatInterval)
	setInt(&cfg.Workflow.HeartbeatTimeout, doc.WorkflowHeartbeatTimeout)
	setInt(&cfg.Workflow.DiscMonitorTimeout, doc.DiscMonitorTimeout)

	setBool(&cfg.Analyzer.IncludeAllEnglishAudio, doc.IncludeAllEnglishAudio)
	setBool(&cfg.Analyzer.IncludeCommentaryTracks, doc.IncludeCommentaryTracks)
	setBool(&cfg.Analyzer.IncludeAlternateAudio, doc.IncludeAlternateAudio)
	setBool(&cfg.Analyzer.IncludeMovieExtras, doc.IncludeMovieExtras)
	setInt(&cfg.Analyzer.MaxExtrasToRip, doc.MaxExtrasToRip)
	setInt(&cfg.Analyzer.MaxExtrasDurationSeconds, doc.MaxExtrasDurationSeconds)
	setInt(&cfg.Analyzer.TVEpisodeMinDurationSeconds, doc.TVEpisodeMinDurationSeconds)
	setInt(&cfg.Analyzer.TVEpisodeMaxDurationSeconds, doc.TVEpisodeMaxDurationSeconds)
	setInt(&cfg.Analyzer.MovieMinDurationSeconds, doc.MovieMinDurationSeconds)
	cfg.Analyzer.AllowShortContent = doc.AllowShortContent
	setString(&cfg.Analyzer.EpisodeMappingStrategy, doc.EpisodeMappingStrategy)
	setBool(&cfg.Analyzer.EnableEnhancedDiscMetadata, doc.EnableEnhancedDiscMetadata)
	setInt(&cfg.Analyzer.SeriesCacheTTLDays, doc.SeriesCacheTTLDays)

	setString(&cfg.Logging.Format, doc.LogFormat)
	setString(&cfg.Logging.Level, doc.LogLevel)
	setInt(&cfg.Logging.RetentionDays, doc.LogRetentionDays)
	if len(doc.LogStageOverrides) > 0 {
		cfg.Logging.StageOverrides = doc.LogStageOverrides
	}
}

func setString(dst *string, value string) {
	if strings.TrimSpace(value) != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}

func setBool(dst *bool, value *bool) {
	if value != nil {
		*dst = *value
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/spindle/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spindle.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	if c.Paths.ReviewDir, err = expandPath(c.Paths.ReviewDir); err != nil {
		return fmt.Errorf("review_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.Logging.Format)
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.BaseURL = strings.TrimSpace(c.TMDB.BaseURL)
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}

	if strings.TrimSpace(c.Plex.Token) == "" {
		if value, ok := os.LookupEnv("PLEX_TOKEN"); ok {
			c.Plex.Token = strings.TrimSpace(value)
		}
	}
	c.Plex.URL = strings.TrimRight(strings.TrimSpace(c.Plex.URL), "/")

	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/spindle/config.toml"
		}
		return fmt.Errorf("tmdb_api_key is required. Set TMDB_API_KEY env var or edit %s", defaultPath)
	}
	if c.Library.MoviesDir == "" {
		return errors.New("movies_dir must be set")
	}
	if c.Library.TVDir == "" {
		return errors.New("tv_dir must be set")
	}
	if c.Plex.Enabled {
		if c.Library.MoviesLibrary == "" {
			return errors.New("movies_library must be set when plex_link_enabled is true")
		}
		if c.Library.TVLibrary == "" {
			return errors.New("tv_library must be set when plex_link_enabled is true")
		}
	}
	if err := ensurePositiveMap(map[string]int{
		"makemkv_rip_timeout":  c.MakeMKV.RipTimeout,
		"makemkv_info_timeout": c.MakeMKV.InfoTimeout,
		"ntfy_request_timeout": c.Notifications.RequestTimeout,
		"disc_monitor_timeout": c.Workflow.DiscMonitorTimeout,
		"queue_poll_interval":  c.Workflow.QueuePollInterval,
		"error_retry_interval": c.Workflow.ErrorRetryInterval,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow_heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow_heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow_heartbeat_timeout must be greater than workflow_heartbeat_interval")
	}
	if c.TMDB.ConfidenceThreshold < 0 || c.TMDB.ConfidenceThreshold > 1 {
		return errors.New("tmdb_confidence_threshold must be between 0 and 1")
	}
	if c.Drapto.Preset < 0 {
		return errors.New("drapto_preset must be zero or positive")
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LibraryDir, c.Paths.LogDir, c.Paths.ReviewDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MakemkvBinary returns the MakeMKV executable name.
func (c *Config) MakemkvBinary() string { return "makemkvcon" }

// DraptoBinary returns the Drapto executable name.
func (c *Config) DraptoBinary() string { return "drapto" }

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string { return "ffprobe" }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := `# Spindle Configuration
# ====================
# Edit the REQUIRED settings below, then customize optional settings when needed.

# TMDB API (required for media identification)
tmdb_api_key = "your_tmdb_api_key_here"              # Get from themoviedb.org/settings/api

# Directory paths - adjust for your environment
library_dir = "~/your-media-library"                 # MUST EXIST: Final media library directory
movies_dir = "movies"                                # Subdirectory inside library_dir for movies
tv_dir = "tv"                                        # Subdirectory inside library_dir for TV

# Library import behavior
overwrite_existing_library_files = false             # Set true to replace existing MKV/SRT files in the library

# Paths & hardware
staging_dir = "~/.local/share/spindle/staging"       # Working directory for rips/encodes
log_dir = "~/.local/share/spindle/logs"              # Logs and queue database
review_dir = "~/review"                              # Encoded files awaiting manual identification
optical_drive = "/dev/sr0"                           # Optical drive device path
api_bind = "127.0.0.1:7487"                          # HTTP API bind address (host:port)

# Plex library scanning
plex_link_enabled = true                             # If false, Spindle will not trigger Plex scans automatically
plex_url = "http://localhost:32400"                  # Plex server URL (omit to disable)
plex_token = ""                                      # Plex auth token (or set PLEX_TOKEN env var)
movies_library = "Movies"                            # Plex movie library name
tv_library = "TV Shows"                              # Plex TV library name

# Notifications
ntfy_topic = "https://ntfy.sh/your_topic"            # ntfy topic for push notifications (optional)
ntfy_request_timeout = 10                            # ntfy HTTP client timeout (seconds)

# TMDB & metadata
tmdb_language = "en-US"                              # ISO 639-1 language for TMDB metadata
tmdb_base_url = "https://api.themoviedb.org/3"       # Override when using a TMDB proxy
tmdb_confidence_threshold = 0.8                      # Match confidence (0.0-1.0)

# Encoding
drapto_preset = 4                                    # Drapto SVT-AV1 preset (lower is faster, higher is higher quality)

# Workflow tuning (advanced)
makemkv_rip_timeout = 3600                           # MakeMKV ripping timeout (seconds)
queue_poll_interval = 5                              # Queue polling cadence (seconds)
error_retry_interval = 10                            # Delay before retrying failures (seconds)
workflow_heartbeat_interval = 15                     # Worker heartbeat interval (seconds)
workflow_heartbeat_timeout = 120                     # Worker heartbeat timeout (seconds)

# Disc analysis
include_all_english_audio = true                     # Rip every English audio track, not just the default
include_commentary_tracks = false                    # Include commentary-labeled audio tracks
include_movie_extras = false                         # Rip bonus-feature titles alongside the main feature

# Logging
log_format = "console"                              # "console" or "json"
log_level = "info"                                  # info, debug, warn, error
`

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
