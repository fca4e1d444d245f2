// Package config provides configuration management for photocurator using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tmattsson/photocurator/internal/urlutil"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = time.Hour

	defaultWorkersPerStage        = 2
	defaultQueueCapacity          = 10000
	defaultBatchSize              = 100
	defaultQuiescenceDebounce     = 5 * time.Second
	defaultQuiescencePollInterval = 5 * time.Second
	defaultQuiescenceMaxWait      = 5 * time.Minute

	defaultWatcherInterval       = 30 * time.Second
	defaultWatcherDebounceWindow = 2 * time.Second

	defaultHTTPClientTimeout      = 15 * time.Second
	defaultCircuitBreakerThresh   = 5
	defaultMaxSourceFileSizeBytes = 200 * 1024 * 1024 // 200MB
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Storage    StorageConfig   `mapstructure:"storage"`
	Pipeline   PipelineConfig  `mapstructure:"pipeline"`
	Watcher    WatcherConfig   `mapstructure:"watcher"`
	Geocoding  GeocodingConfig `mapstructure:"geocoding"`
	Captioning CaptionConfig   `mapstructure:"captioning"`
	Faces      FacesConfig     `mapstructure:"faces"`
	Scheduler  SchedulerConfig `mapstructure:"scheduler"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// PhotosDir is the root of the directory tree being indexed.
	PhotosDir string `mapstructure:"photos_dir"`
	// DataDir holds thumbnails, extracted motion video, and the database (when sqlite).
	DataDir string `mapstructure:"data_dir"`
	// ThumbnailSizes are the longest-edge pixel sizes to generate a thumbnail for, e.g. [256, 1024].
	ThumbnailSizes []int `mapstructure:"thumbnail_sizes"`
	// MaxSourceFileSize skips enrichment of source files larger than this.
	MaxSourceFileSize ByteSize `mapstructure:"max_source_file_size"`
}

// MediaDir returns the directory MediaStore is rooted at. MediaStore creates
// its own thumbs/faces/motion_videos subdirectories beneath it, per the
// on-disk layout.
func (c *StorageConfig) MediaDir() string {
	return c.DataDir
}

// DBPath returns the directory the relational store's files (sqlite database,
// WAL files) live under.
func (c *StorageConfig) DBPath() string {
	return fmt.Sprintf("%s/db", c.DataDir)
}

// TempPath returns the scratch directory used for in-progress enrichment work.
func (c *StorageConfig) TempPath() string {
	return fmt.Sprintf("%s/tmp", c.DataDir)
}

// PipelineConfig holds photo enrichment pipeline configuration.
type PipelineConfig struct {
	// WorkersPerStage is the number of goroutines servicing each per-item stage.
	WorkersPerStage int `mapstructure:"workers_per_stage"`
	// QueueCapacity is the buffered channel capacity backing each stage queue.
	QueueCapacity int `mapstructure:"queue_capacity"`
	// BatchSize is how many files Discovery indexes between cancellation checks.
	BatchSize int `mapstructure:"batch_size"`
	// PhotoExtensions lists the lowercase file extensions Discovery admits (without the dot).
	PhotoExtensions []string `mapstructure:"photo_extensions"`
	// QuiescenceDebounce is how long the batch coordinator waits after first seeing
	// pending EVENTS work before it starts draining.
	QuiescenceDebounce time.Duration `mapstructure:"quiescence_debounce"`
	// QuiescencePollInterval is the sleep between upstream-busy polls while waiting
	// for upstream stages to drain.
	QuiescencePollInterval time.Duration `mapstructure:"quiescence_poll_interval"`
	// QuiescenceMaxWait is not read by the batch coordinator: its upstream
	// quiescence wait is capped at 60 sleeps of QuiescencePollInterval
	// (5 minutes at the defaults), whatever this field holds.
	QuiescenceMaxWait time.Duration `mapstructure:"quiescence_max_wait"`
}

// WatcherConfig holds live filesystem watcher configuration.
type WatcherConfig struct {
	// Interval is the periodic fallback poll interval, independent of fsnotify events.
	Interval time.Duration `mapstructure:"interval"`
	// DebounceWindow coalesces bursts of filesystem events for the same path.
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
}

// GeocodingConfig holds reverse-geocoding backend configuration.
type GeocodingConfig struct {
	EndpointURL             string        `mapstructure:"endpoint_url"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
}

// CaptionConfig holds AI captioning/tagging backend configuration.
type CaptionConfig struct {
	EndpointURL             string        `mapstructure:"endpoint_url"`
	Model                   string        `mapstructure:"model"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
}

// FacesConfig holds face-embedding backend configuration.
type FacesConfig struct {
	EndpointURL string        `mapstructure:"endpoint_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig holds the periodic rescan schedule.
type SchedulerConfig struct {
	// RescanCronSchedule is a 6-field cron expression. Empty disables periodic rescans.
	RescanCronSchedule string `mapstructure:"rescan_cron_schedule"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with PHOTOCURATOR_ and use underscores for nesting.
// Example: PHOTOCURATOR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/photocurator")
		v.AddConfigPath("$HOME/.photocurator")
	}

	v.SetEnvPrefix("PHOTOCURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0)) // 0 disables it: SSE streams must not be write-timed out
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "photocurator.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", defaultConnMaxLifetime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.photos_dir", "./photos")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.thumbnail_sizes", []int{256, 1024})
	v.SetDefault("storage.max_source_file_size", defaultMaxSourceFileSizeBytes)

	// Pipeline defaults
	v.SetDefault("pipeline.workers_per_stage", defaultWorkersPerStage)
	v.SetDefault("pipeline.queue_capacity", defaultQueueCapacity)
	v.SetDefault("pipeline.batch_size", defaultBatchSize)
	v.SetDefault("pipeline.photo_extensions", []string{"jpg", "jpeg", "png", "heic", "heif", "webp", "tiff", "tif", "bmp"})
	v.SetDefault("pipeline.quiescence_debounce", defaultQuiescenceDebounce)
	v.SetDefault("pipeline.quiescence_poll_interval", defaultQuiescencePollInterval)
	v.SetDefault("pipeline.quiescence_max_wait", defaultQuiescenceMaxWait)

	// Watcher defaults
	v.SetDefault("watcher.interval", defaultWatcherInterval)
	v.SetDefault("watcher.debounce_window", defaultWatcherDebounceWindow)

	// Geocoding defaults
	v.SetDefault("geocoding.endpoint_url", "")
	v.SetDefault("geocoding.timeout", defaultHTTPClientTimeout)
	v.SetDefault("geocoding.circuit_breaker_threshold", defaultCircuitBreakerThresh)

	// Captioning defaults
	v.SetDefault("captioning.endpoint_url", "")
	v.SetDefault("captioning.model", "llava")
	v.SetDefault("captioning.timeout", 60*time.Second)
	v.SetDefault("captioning.circuit_breaker_threshold", defaultCircuitBreakerThresh)

	// Faces defaults
	v.SetDefault("faces.endpoint_url", "")
	v.SetDefault("faces.timeout", defaultHTTPClientTimeout)

	// Scheduler defaults
	v.SetDefault("scheduler.rescan_cron_schedule", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.PhotosDir == "" {
		return fmt.Errorf("storage.photos_dir is required")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if c.Pipeline.WorkersPerStage < 1 {
		return fmt.Errorf("pipeline.workers_per_stage must be at least 1")
	}
	if c.Pipeline.QueueCapacity < 1 {
		return fmt.Errorf("pipeline.queue_capacity must be at least 1")
	}
	if len(c.Pipeline.PhotoExtensions) == 0 {
		return fmt.Errorf("pipeline.photo_extensions must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if err := c.normalizeEndpoints(); err != nil {
		return err
	}

	return nil
}

// normalizeEndpoints defaults a bare host:port endpoint (e.g. "ollama:11434")
// to http:// and rejects anything other than a well-formed http(s) URL.
// A stage with an empty EndpointURL is simply disabled, so empty strings
// pass through untouched.
func (c *Config) normalizeEndpoints() error {
	endpoints := []struct {
		name string
		url  *string
	}{
		{"geocoding.endpoint_url", &c.Geocoding.EndpointURL},
		{"faces.endpoint_url", &c.Faces.EndpointURL},
		{"captioning.endpoint_url", &c.Captioning.EndpointURL},
	}
	for _, e := range endpoints {
		if *e.url == "" {
			continue
		}
		// Only URLs with an explicit scheme are scheme-checked: a bare
		// "host:port" form (e.g. "ollama:11434") is ambiguous for
		// url.Parse, which would otherwise misread "ollama" as the scheme.
		if strings.Contains(*e.url, "://") {
			scheme := urlutil.GetScheme(*e.url)
			if scheme != urlutil.SchemeHTTP && scheme != urlutil.SchemeHTTPS {
				return fmt.Errorf("%s must be an http(s) endpoint, got %q", e.name, *e.url)
			}
		}
		*e.url = urlutil.NormalizeBaseURL(*e.url)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
