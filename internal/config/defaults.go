package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/keylens/
//   - Linux:   ~/.local/share/keylens/
//   - Windows: %APPDATA%\keylens\
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "keylens")
	case "linux":
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "keylens")
		}
		return filepath.Join(homeDir(), ".local", "share", "keylens")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "keylens")
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", "keylens")
	default:
		return filepath.Join(homeDir(), ".keylens")
	}
}

// PlatformConfigDir returns the platform-specific configuration directory.
// macOS and Windows keep configuration next to the data.
func PlatformConfigDir() string {
	if runtime.GOOS == "linux" {
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "keylens")
		}
		return filepath.Join(homeDir(), ".config", "keylens")
	}
	return PlatformDataDir()
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", "keylens")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "keylens", "logs")
		}
		return filepath.Join(PlatformDataDir(), "logs")
	default:
		if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
			return filepath.Join(stateHome, "keylens")
		}
		return filepath.Join(homeDir(), ".local", "state", "keylens")
	}
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// SupportedConfigFormats returns the config file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the working directory, the config directory and
// the data directory, in that order, for config.<ext>. It returns "" when
// none exists.
func FindConfigFile() string {
	searchDirs := []string{".", PlatformConfigDir(), KeylensDir()}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
