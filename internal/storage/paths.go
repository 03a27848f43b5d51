// Package storage keeps finished search results on disk so that later
// searches of the same position can start from the stored best move.
package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "trout"

// GetDataDir returns the platform-specific data directory for the application.
// - macOS: ~/Library/Application Support/trout/
// - Linux: ~/.local/share/trout/
// - Windows: %APPDATA%/trout/
func GetDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support")

	case "windows":
		baseDir = os.Getenv("APPDATA")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, "AppData", "Roaming")
		}

	default:
		// Check XDG_DATA_HOME first
		baseDir = os.Getenv("XDG_DATA_HOME")
		if baseDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			baseDir = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// GetAnalysisDir returns the directory for the analysis database.
func GetAnalysisDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}

	dbDir := filepath.Join(dataDir, "analysis")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", err
	}
	return dbDir, nil
}

// ResolveDir maps the configured analysis directory to a path. "auto"
// selects the platform data directory; "" disables the store.
func ResolveDir(configured string) (string, error) {
	if configured == "auto" {
		return GetAnalysisDir()
	}
	return configured, nil
}

// MemoryDir selects an in-memory store.
const MemoryDir = ":memory:"

// OpenDir opens the store at a configured location. It returns a nil
// store when the location is empty.
func OpenDir(configured string) (*Store, error) {
	switch configured {
	case "":
		return nil, nil
	case MemoryDir:
		return OpenInMemory()
	}
	dir, err := ResolveDir(configured)
	if err != nil {
		return nil, err
	}
	return Open(dir)
}
