package config

import (
	"os"
	"path/filepath"
)

const appName = "simple-monitor"

// defaultConfigPath returns where the config file lives when no explicit
// path is given: /etc/simple-monitor/config.yaml when running as root,
// otherwise $XDG_CONFIG_HOME/simple-monitor/config.yaml.
func defaultConfigPath() string {
	if os.Geteuid() == 0 {
		return filepath.Join("/etc", appName, "config.yaml")
	}
	return filepath.Join(configHome(), appName, "config.yaml")
}

func configHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config")
}

// DefaultLogPath mirrors the config layout for log files: /var/log as
// root, $XDG_DATA_HOME otherwise. Used when daemonizing without an
// explicit log_file.
func DefaultLogPath() string {
	if os.Geteuid() == 0 {
		return filepath.Join("/var/log", appName, "log.txt")
	}
	return filepath.Join(dataHome(), appName, "log.txt")
}

func dataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}
