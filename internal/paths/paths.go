package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "scriptdeck"

func configRoot() (string, error) {
	return rootWithFallback("XDG_CONFIG_HOME", os.UserConfigDir, ".config")
}

func stateRoot() (string, error) {
	noOSDefault := func() (string, error) {
		return "", fmt.Errorf("no OS state directory function")
	}

	return rootWithFallback("XDG_STATE_HOME", noOSDefault, filepath.Join(".local", "state"))
}

func dataRoot() (string, error) {
	noOSDefault := func() (string, error) {
		return "", fmt.Errorf("no OS data directory function")
	}

	return rootWithFallback("XDG_DATA_HOME", noOSDefault, filepath.Join(".local", "share"))
}

func rootWithFallback(xdgEnv string, osFn func() (string, error), fallbackDir string) (string, error) {
	// Priority 1: Explicit XDG env var (cross-platform).
	if xdg := os.Getenv(xdgEnv); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName), nil
	}

	// Priority 2: OS-specific default (macOS ~/Library/..., Windows %AppData%, Linux ~/.config).
	root, err := osFn()
	if err == nil && root != "" {
		return filepath.Join(root, appName), nil
	}

	// Priority 3: Home-dir fallback.
	home, homeErr := os.UserHomeDir()
	if homeErr == nil && home != "" {
		return filepath.Join(home, fallbackDir, appName), nil
	}

	if err != nil {
		return "", err
	}

	return "", fmt.Errorf("resolve user home directory")
}

// ConfigRoot returns the user config root directory for scriptdeck.
func ConfigRoot() (string, error) {
	return configRoot()
}

// StateRoot returns the user state root directory for scriptdeck.
func StateRoot() (string, error) {
	return stateRoot()
}

// DataRoot returns the user data root directory for scriptdeck.
func DataRoot() (string, error) {
	return dataRoot()
}

// DatabaseFile returns the default SQLite database path.
func DatabaseFile() (string, error) {
	root, err := dataRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "scriptdeck.db"), nil
}

// LogsDir returns the default log directory.
func LogsDir() (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "logs"), nil
}

// DefaultLogFile returns the default log file path.
func DefaultLogFile() (string, error) {
	logsDir, err := LogsDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(logsDir, "scriptdeck.log"), nil
}

// JournalDir returns the default raw output journal directory.
func JournalDir() (string, error) {
	root, err := stateRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, "journal"), nil
}
