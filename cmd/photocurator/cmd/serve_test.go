package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmattsson/photocurator/internal/config"
	"github.com/tmattsson/photocurator/internal/pipeline"
	"github.com/tmattsson/photocurator/internal/repository"
	"github.com/tmattsson/photocurator/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestInitDatabase_RootsBareSQLiteFilename(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "photocurator.db"
	cfg.Storage.DataDir = t.TempDir()

	db, err := initDatabase(cfg, discardLogger())
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, filepath.Join(cfg.Storage.DBPath(), "photocurator.db"))
}

func TestInitDatabase_LeavesInMemoryDSNUntouched(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	cfg.Storage.DataDir = t.TempDir()

	db, err := initDatabase(cfg, discardLogger())
	require.NoError(t, err)
	defer db.Close()

	assert.NoDirExists(t, cfg.Storage.DBPath())
}

func TestInitDatabase_LeavesAbsolutePathUntouched(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	abs := filepath.Join(dir, "custom.db")

	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = abs
	cfg.Storage.DataDir = t.TempDir()

	db, err := initDatabase(cfg, discardLogger())
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, abs)
}

func TestStartStageWorkers_WiresEveryStageWithoutPanicking(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Pipeline.WorkersPerStage = 1
	cfg.Storage.DataDir = t.TempDir()

	db, err := initDatabase(cfg, discardLogger())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, runMigrations(db, discardLogger()))

	mediaStore, err := storage.NewMediaStore(filepath.Join(cfg.Storage.DataDir, "media"))
	require.NoError(t, err)

	items := repository.NewItemRepository(db.DB)
	faces := repository.NewFaceRepository(db.DB)

	orch := pipeline.NewOrchestrator(cfg.Pipeline.QueueCapacity, discardLogger())
	resolver := repository.NewItemResolverAdapter(items)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.NotPanics(t, func() {
		startStageWorkers(ctx, cfg, orch, resolver, items, faces, mediaStore, discardLogger())
	})
}
