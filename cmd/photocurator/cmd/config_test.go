package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tmattsson/photocurator/internal/config"
)

func TestToMap_RendersDurationsAsStrings(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	m := toMap(cfg)

	server, ok := m["server"].(map[string]any)
	require.True(t, ok, "server section should be a nested map")
	assert.Equal(t, (30 * time.Second).String(), server["read_timeout"])

	storage, ok := m["storage"].(map[string]any)
	require.True(t, ok, "storage section should be a nested map")
	assert.IsType(t, "", storage["max_source_file_size"], "ByteSize should render via its Stringer")
}

func TestToMap_RoundTripsThroughYAML(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	m := toMap(cfg)

	data, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server:")
	assert.Contains(t, string(data), "database:")
	assert.Contains(t, string(data), "pipeline:")
}

func TestRunConfigDump(t *testing.T) {
	err := runConfigDump(configDumpCmd, nil)
	assert.NoError(t, err)
}
