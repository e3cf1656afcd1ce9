package pathing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("BSX_DATA_DIR", "")
	t.Setenv("BSX_CONFIG_DIR", "")
	t.Setenv("BSX_LOG_DIR", "")

	assert.Equal(t, "/var/lib/battery_schedule_exchange", GetDataDir())
	assert.Equal(t, "/etc/battery_schedule_exchange", GetConfigDir())
	assert.Equal(t, "/var/log/battery_schedule_exchange", GetLogDir())
	assert.Equal(t, "/var/lib/battery_schedule_exchange/bsx-issuer.db", GetIssuerDbPath())
}

func TestEnvOverridesAndEnsureDirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("BSX_DATA_DIR", filepath.Join(root, "data"))
	t.Setenv("BSX_CONFIG_DIR", filepath.Join(root, "etc"))
	t.Setenv("BSX_LOG_DIR", filepath.Join(root, "log"))

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{GetDataDir(), GetConfigDir(), GetLogDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, "data", "bsx-issuer.db"), GetIssuerDbPath())
}
