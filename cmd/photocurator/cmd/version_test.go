package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmattsson/photocurator/internal/version"
)

func TestVersionCmd_PlainText(t *testing.T) {
	versionJSON = false
	assert.NotPanics(t, func() { versionCmd.Run(versionCmd, nil) })
	assert.Contains(t, version.String(), version.ApplicationName)
}

func TestVersionCmd_JSON(t *testing.T) {
	versionJSON = true
	defer func() { versionJSON = false }()

	info := version.GetInfo()
	data, err := json.MarshalIndent(info, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version"`)
}
