package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmattsson/photocurator/internal/config"
	"github.com/tmattsson/photocurator/internal/database"
	"github.com/tmattsson/photocurator/internal/database/migrations"
	"github.com/tmattsson/photocurator/internal/discovery"
	"github.com/tmattsson/photocurator/internal/httpapi"
	"github.com/tmattsson/photocurator/internal/observability"
	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/internal/pipeline/stages"
	"github.com/tmattsson/photocurator/internal/repository"
	"github.com/tmattsson/photocurator/internal/resume"
	"github.com/tmattsson/photocurator/internal/scheduler"
	"github.com/tmattsson/photocurator/internal/startup"
	"github.com/tmattsson/photocurator/internal/storage"
	"github.com/tmattsson/photocurator/internal/telemetry"
	"github.com/tmattsson/photocurator/internal/version"
	"github.com/tmattsson/photocurator/internal/watcher"
	"github.com/tmattsson/photocurator/pkg/httpclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the photocurator server",
	Long: `Start the photocurator enrichment pipeline and its HTTP control/read API.

The server:
- Walks the configured photo library and enriches every item through the
  EXIF, geocoding, thumbnail, motion, hashing, faces, captioning, and
  events stages
- Watches the library for live filesystem changes
- Re-admits unfinished items from a prior run on startup
- Runs an optional cron-scheduled periodic rescan
- Exposes a REST + Server-Sent Events control and read API`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = strings.ToLower(logLevelFlag)
	}
	if logFormatFlag != "" {
		cfg.Logging.Format = strings.ToLower(logFormatFlag)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting photocurator", slog.String("version", version.Version))

	if n, err := startup.CleanupSystemTempDirs(logger); err != nil {
		logger.Warn("system temp dir cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("removed orphaned system temp directories", slog.Int("count", n))
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := runMigrations(db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	mediaStore, err := storage.NewMediaStore(cfg.Storage.MediaDir())
	if err != nil {
		return fmt.Errorf("initializing media store: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.TempPath(), 0o750); err != nil {
		return fmt.Errorf("initializing temp directory: %w", err)
	}

	items := repository.NewItemRepository(db.DB)
	faces := repository.NewFaceRepository(db.DB)
	persons := repository.NewPersonRepository(db.DB)
	events := repository.NewEventRepository(db.DB)

	orch := pipeline.NewOrchestrator(cfg.Pipeline.QueueCapacity, logger)
	resolver := repository.NewItemResolverAdapter(items)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	startStageWorkers(ctx, cfg, orch, resolver, items, faces, mediaStore, logger)

	batchStore := repository.NewBatchStoreAdapter(faces, persons, items, events)
	batchCoordinator := pipeline.NewBatchCoordinator(orch, batchStore, pipeline.BatchCoordinatorConfig{
		PollInterval: cfg.Pipeline.QuiescencePollInterval,
		Debounce:     cfg.Pipeline.QuiescenceDebounce,
		QuiesceSleep: cfg.Pipeline.QuiescencePollInterval,
	}, logger)
	go batchCoordinator.Run(ctx)

	scanner := discovery.New(items, orch, cfg.Pipeline.PhotoExtensions, cfg.Storage.MaxSourceFileSize.Bytes(), cfg.Pipeline.BatchSize, logger)

	tracker := telemetry.NewScanTracker(nil)
	publisher := telemetry.NewPublisher(orch, tracker, cfg.Storage.DataDir, logger)
	go publisher.Run(ctx)
	defer publisher.Stop()

	serverConfig := httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	server := httpapi.NewServer(serverConfig, logger, version.Version)

	scanController := httpapi.Mount(server, httpapi.Deps{
		Scanner:   scanner,
		Tracker:   tracker,
		PhotosDir: cfg.Storage.PhotosDir,
		Orch:      orch,
		Publisher: publisher,
		Items:     items,
		Persons:   persons,
		Events:    events,
		Logger:    logger,
	})

	rescanSched := scheduler.New(logger)
	if err := rescanSched.Start(cfg.Scheduler.RescanCronSchedule, func() {
		scanController.TriggerScan()
	}); err != nil {
		return fmt.Errorf("starting rescan scheduler: %w", err)
	}
	defer rescanSched.Stop()

	if cfg.Watcher.Interval > 0 {
		go runFallbackPoll(ctx, cfg.Watcher.Interval, scanController, logger)
	}

	resumeCoordinator := resume.New(items, orch, logger)
	go func() {
		result, err := resumeCoordinator.Run(ctx)
		if err != nil {
			logger.Warn("resume coordinator stopped early", slog.String("error", err.Error()))
			return
		}
		logger.Info("resume coordinator finished",
			slog.Int("admitted", result.Admitted), slog.Int("batches", result.Batches))
	}()

	fsWatcher, err := watcher.New(cfg.Storage.PhotosDir, discovery.ScannerAdapter{Scanner: scanner}, cfg.Watcher.DebounceWindow, logger)
	if err != nil {
		return fmt.Errorf("initializing filesystem watcher: %w", err)
	}
	if err := fsWatcher.AddRecursive(); err != nil {
		return fmt.Errorf("watching photo library: %w", err)
	}
	defer fsWatcher.Close()
	go func() {
		if err := fsWatcher.Run(ctx); err != nil {
			logger.Warn("filesystem watcher stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("photocurator ready",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("photos_dir", cfg.Storage.PhotosDir),
		slog.String("data_dir", cfg.Storage.DataDir),
	)

	return server.ListenAndServe(ctx)
}

// initDatabase opens the relational store. For the default sqlite driver a
// bare filename DSN is rooted under the storage data directory's db/
// subdirectory rather than the process's working directory.
func initDatabase(cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	dsn := cfg.Database.DSN
	if cfg.Database.Driver == "sqlite" && dsn != ":memory:" &&
		!filepath.IsAbs(dsn) && !strings.ContainsAny(dsn, string(filepath.Separator)+":?") {
		if err := os.MkdirAll(cfg.Storage.DBPath(), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = filepath.Join(cfg.Storage.DBPath(), dsn)
	}
	dbCfg := cfg.Database
	dbCfg.DSN = dsn
	return database.New(dbCfg, logger, nil)
}

func runMigrations(db *database.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return migrator.Up(context.Background())
}

// runFallbackPoll triggers a rescan on a fixed interval, independent of
// fsnotify events, covering changes the watcher can miss (network mounts,
// events dropped under inotify pressure). A scan already in progress is
// skipped; see ScanController.TriggerScan.
func runFallbackPoll(ctx context.Context, interval time.Duration, scan *httpapi.ScanController, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := scan.TriggerScan()
			logger.Debug("fallback poll tick", slog.String("status", status))
		}
	}
}

// enricherClient builds a resilient HTTP client for one of the optional
// external enrichment backends (geocoding, faces, captioning), registering
// it with the shared circuit breaker registry for observability.
func enricherClient(name string, timeout time.Duration, circuitThreshold int, logger *slog.Logger) *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if circuitThreshold > 0 {
		cfg.CircuitThreshold = circuitThreshold
	}
	cfg.Logger = logger
	client := httpclient.New(cfg)
	httpclient.DefaultRegistry.Register(name, client)
	return client
}

// startStageWorkers builds every per-item stage's enricher and runs
// cfg.Pipeline.WorkersPerStage goroutines draining each stage's queue,
// including a Discovery worker whose enricher is a no-op: Discovery's real
// work (indexing, admission) already happened in discovery.Scanner/watcher
// before a key reaches this queue, so the worker's only job is routing it
// on to EXIF.
func startStageWorkers(
	ctx context.Context,
	cfg *config.Config,
	orch *pipeline.Orchestrator,
	resolver pipeline.ItemResolver,
	items repository.ItemRepository,
	faces repository.FaceRepository,
	mediaStore *storage.MediaStore,
	logger *slog.Logger,
) {
	discoveryEnricher := func(context.Context, string) (pipeline.EnrichOutcome, error) {
		return pipeline.EnrichSuccess, nil
	}

	geocodeClient := enricherClient("geocoding", cfg.Geocoding.Timeout, cfg.Geocoding.CircuitBreakerThreshold, logger)
	facesClient := enricherClient("faces", cfg.Faces.Timeout, 0, logger)
	captionClient := enricherClient("captioning", cfg.Captioning.Timeout, cfg.Captioning.CircuitBreakerThreshold, logger)

	faceWriter := repository.NewFaceWriterAdapter(faces, items)

	enrichers := map[pipeline.Stage]pipeline.Enricher{
		pipeline.Discovery:  discoveryEnricher,
		pipeline.EXIF:       stages.NewEXIFEnricher(items, items),
		pipeline.Geocoding:  stages.NewGeocodingEnricher(items, items, geocodeClient, cfg.Geocoding.EndpointURL),
		pipeline.Thumbnails: stages.NewThumbnailEnricher(items, mediaStore, items, cfg.Storage.ThumbnailSizes),
		pipeline.Motion:     stages.NewMotionEnricher(items, mediaStore, items),
		pipeline.Hashing:    stages.NewHashingEnricher(items, items),
		pipeline.Faces:      stages.NewFacesEnricher(items, faceWriter, facesClient, cfg.Faces.EndpointURL),
		pipeline.Captioning: stages.NewCaptioningEnricher(items, items, captionClient, cfg.Captioning.EndpointURL, cfg.Captioning.Model),
	}

	workersPerStage := cfg.Pipeline.WorkersPerStage
	if workersPerStage < 1 {
		workersPerStage = 1
	}

	for _, stage := range []pipeline.Stage{
		pipeline.Discovery, pipeline.EXIF, pipeline.Geocoding, pipeline.Thumbnails,
		pipeline.Motion, pipeline.Hashing, pipeline.Faces, pipeline.Captioning,
	} {
		enricher := enrichers[stage]
		for i := 0; i < workersPerStage; i++ {
			w := pipeline.NewStageWorker(stage, orch, resolver, enricher, logger)
			go w.Run(ctx)
		}
	}
}
