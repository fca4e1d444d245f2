package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "photocurator.db", cfg.Database.DSN)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, "./photos", cfg.Storage.PhotosDir)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, []int{256, 1024}, cfg.Storage.ThumbnailSizes)

	assert.Equal(t, 2, cfg.Pipeline.WorkersPerStage)
	assert.Equal(t, 10000, cfg.Pipeline.QueueCapacity)
	assert.Contains(t, cfg.Pipeline.PhotoExtensions, "jpg")
	assert.Equal(t, 5*time.Second, cfg.Pipeline.QuiescenceDebounce)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.QuiescenceMaxWait)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.Equal(t, "", cfg.Scheduler.RescanCronSchedule)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
storage:
  photos_dir: /mnt/photos
  data_dir: /mnt/photocurator-data
  max_source_file_size: "50MB"
pipeline:
  workers_per_stage: 4
scheduler:
  rescan_cron_schedule: "0 0 3 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/mnt/photos", cfg.Storage.PhotosDir)
	assert.Equal(t, "/mnt/photocurator-data", cfg.Storage.DataDir)
	assert.Equal(t, int64(50*1024*1024), cfg.Storage.MaxSourceFileSize.Bytes())
	assert.Equal(t, 4, cfg.Pipeline.WorkersPerStage)
	assert.Equal(t, "0 0 3 * * *", cfg.Scheduler.RescanCronSchedule)
}

func TestValidate_RejectsBadDriver(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsEmptyPhotosDir(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Storage.PhotosDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroWorkers(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Pipeline.WorkersPerStage = 0
	assert.Error(t, cfg.Validate())
}

func TestServerConfig_Address(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", s.Address())
}

func TestValidate_NormalizesBareEndpointHost(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Geocoding.EndpointURL = "geocoder:9000"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://geocoder:9000", cfg.Geocoding.EndpointURL)
}

func TestValidate_RejectsNonHTTPEndpoint(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Faces.EndpointURL = "file:///etc/passwd"

	assert.Error(t, cfg.Validate())
}

func TestValidate_LeavesEmptyEndpointDisabled(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Captioning.EndpointURL = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "", cfg.Captioning.EndpointURL)
}
