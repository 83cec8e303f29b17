// Package config provides configuration management for termbrain.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName names the per-user directories.
const appName = "termbrain"

// Paths holds all the path configurations for termbrain.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/termbrain)
	ConfigDir string

	// DataDir is the directory for the database and logs (~/.local/share/termbrain)
	DataDir string

	// CacheDir is the directory for cache files (~/.cache/termbrain)
	CacheDir string

	// RuntimeDir holds per-session state files
	RuntimeDir string
}

// DefaultPaths returns the default paths based on XDG Base Directory spec.
// On Windows, it uses %APPDATA% instead.
func DefaultPaths() *Paths {
	home := homeDir()

	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}

		return &Paths{
			ConfigDir:  filepath.Join(appData, appName),
			DataDir:    filepath.Join(localAppData, appName),
			CacheDir:   filepath.Join(localAppData, appName, "cache"),
			RuntimeDir: filepath.Join(localAppData, appName, "run"),
		}
	}

	configHome := envOr("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	dataHome := envOr("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	cacheHome := envOr("XDG_CACHE_HOME", filepath.Join(home, ".cache"))

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(home, "."+appName, "run")
	} else {
		runtimeDir = filepath.Join(runtimeDir, appName)
	}

	return &Paths{
		ConfigDir:  filepath.Join(configHome, appName),
		DataDir:    filepath.Join(dataHome, appName),
		CacheDir:   filepath.Join(cacheHome, appName),
		RuntimeDir: runtimeDir,
	}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// DatabaseFile returns the path to the SQLite database.
func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir, "termbrain.db")
}

// SessionDir returns the directory holding per-session context files.
func (p *Paths) SessionDir() string {
	return filepath.Join(p.RuntimeDir, "sessions")
}

// WorkflowDir returns the default directory for exported workflow files.
func (p *Paths) WorkflowDir() string {
	return filepath.Join(p.ConfigDir, "workflows")
}

// LogDir returns the path to the log directory.
func (p *Paths) LogDir() string {
	return filepath.Join(p.DataDir, "logs")
}

// LogFile returns the path to the log file.
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogDir(), "termbrain.log")
}

// EnsureDirectories creates all necessary directories.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.ConfigDir,
		p.DataDir,
		p.CacheDir,
		p.RuntimeDir,
		p.SessionDir(),
		p.LogDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return os.Getenv("USERPROFILE")
		}
		return os.Getenv("HOME")
	}
	return home
}
