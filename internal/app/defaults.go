package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FITREC_CONFIG_PATH: config file location (default: ~/.config/fitrec.toml)
//   - FITREC_HOME: base directory for fitrec data (default: ~/.local/share/fitrec)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome("FITREC_CONFIG_PATH", ".config", "fitrec.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := fromEnvOrHome("FITREC_HOME", ".local", "share", "fitrec")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env when set, else the path elems
// joined under the user's home directory.
func fromEnvOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}
