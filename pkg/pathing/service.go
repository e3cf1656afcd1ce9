package pathing

import (
	"os"
	"path/filepath"
)

const (
	defaultDataDir   = "/var/lib/battery_schedule_exchange"
	defaultConfigDir = "/etc/battery_schedule_exchange"
	defaultLogDir    = "/var/log/battery_schedule_exchange"
)

// EnsureDirs creates the data, config and log directories if needed.
// Called once by the daemons on startup.
func EnsureDirs() error {
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
		GetLogDir(),
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetIssuerDbPath() string {
	return filepath.Join(GetDataDir(), "bsx-issuer.db")
}

func GetDataDir() string {
	return envOr("BSX_DATA_DIR", defaultDataDir)
}

func GetConfigDir() string {
	return envOr("BSX_CONFIG_DIR", defaultConfigDir)
}

func GetLogDir() string {
	return envOr("BSX_LOG_DIR", defaultLogDir)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
