package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// KEYGATE_DATA_DIR env var, or ~/.keygate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("KEYGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.keygate"
}

// loadConfig reads the YAML config from --config or the default search
// paths, falling back to built-in defaults when no file exists.
func loadConfig() (*config.YAMLConfig, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("keygate.yaml"); err == nil {
			path = "keygate.yaml"
		}
	}
	if path == "" {
		return config.DefaultYAMLConfig(), nil
	}
	return config.LoadYAMLConfig(path)
}

// openStore opens the storage backend named in the config. A SQLite
// backend with no DSN lands in the data directory.
func openStore(cfg *config.YAMLConfig) (*store.Store, error) {
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == "sqlite" {
		if cfg.Storage.DSN == "" {
			return store.NewStore(resolveDataDir())
		}
	}
	return store.Open(cfg.Storage.Driver, cfg.Storage.DSN)
}

// openCLIStore opens the store for one-shot management commands using the
// same config resolution as serve.
func openCLIStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openStore(cfg)
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "keygate.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "keygate.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
