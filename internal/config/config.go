// Package config loads and validates the agent configuration.
//
// Priority order: built-in defaults < config file < environment < flags.
// A missing config file is not an error: the defaults are written out to
// the expected location so a first run leaves something to edit.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MonitorKind discriminates monitor configurations. The set is closed:
// anything else is rejected before the agent starts.
type MonitorKind string

const (
	MonitorLoadAverage   MonitorKind = "load_average"
	MonitorDiskUsage     MonitorKind = "disk_usage"
	MonitorDiskWriteRate MonitorKind = "disk_write_rate"
	MonitorTemperature   MonitorKind = "temperature"
	MonitorUptime        MonitorKind = "uptime"
	MonitorSystemd       MonitorKind = "systemd"
	MonitorPing          MonitorKind = "ping"
	MonitorPackages      MonitorKind = "package_manager"
)

// NotifierKind discriminates notification channel configurations.
type NotifierKind string

const (
	NotifierEmail   NotifierKind = "email"
	NotifierWebhook NotifierKind = "webhook"
	NotifierNATS    NotifierKind = "nats"
	NotifierJournal NotifierKind = "journal"
)

// DiskUsageWhich selects which figure a disk_usage monitor reports.
type DiskUsageWhich string

const (
	DiskTotal   DiskUsageWhich = "total"
	DiskUsed    DiskUsageWhich = "used"
	DiskFree    DiskUsageWhich = "free"
	DiskPercent DiskUsageWhich = "percent"
)

// PackageManager selects the pending-updates query flavor.
type PackageManager string

const (
	PackageManagerApt    PackageManager = "apt"
	PackageManagerPacman PackageManager = "pacman"
)

// Exceedance directions accepted in alarm rules.
const (
	ExceedanceOver  = "over"
	ExceedanceUnder = "under"
)

// Duration accepts Go duration strings in YAML ("30s", "10m", "1h30m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// AlarmConfig is one threshold rule attached to a monitor. The rule fires
// when the last Count datapoints are all strictly beyond Value in the
// Exceedance direction. Reminder, when set, repeats the notification at
// that interval while the alarm stays active.
type AlarmConfig struct {
	Name       string   `yaml:"name"`
	Exceedance string   `yaml:"exceedance"`
	Value      float64  `yaml:"value"`
	Count      int      `yaml:"count"`
	Reminder   Duration `yaml:"reminder,omitempty"`
}

// MonitorConfig describes one monitor. Kind decides which of the
// remaining fields apply; Validate enforces that per kind.
type MonitorConfig struct {
	Kind   MonitorKind   `yaml:"kind"`
	Title  string        `yaml:"title"`
	Alarms []AlarmConfig `yaml:"alarms,omitempty"`

	// load_average: 0 for the 1 minute average, 1 for 5, 2 for 15.
	// Also the reading index for sensors exposing several values.
	Index int `yaml:"index,omitempty"`

	// disk_usage and disk_write_rate
	Mountpoint   string         `yaml:"mountpoint,omitempty"`
	Which        DiskUsageWhich `yaml:"which,omitempty"`
	Disk         string         `yaml:"disk,omitempty"`
	UnitBase     int            `yaml:"unit_base,omitempty"`
	UnitExponent int            `yaml:"unit_exponent,omitempty"`

	// temperature
	Sensor string `yaml:"sensor,omitempty"`

	// systemd
	Service string `yaml:"service,omitempty"`

	// ping
	Host string `yaml:"host,omitempty"`

	// package_manager
	Manager PackageManager `yaml:"manager,omitempty"`
	Delay   Duration       `yaml:"delay,omitempty"`
}

// NotifierConfig describes one notification channel.
type NotifierConfig struct {
	Kind NotifierKind `yaml:"kind"`

	// email
	Sender   string `yaml:"sender,omitempty"`
	Receiver string `yaml:"receiver,omitempty"`
	Server   string `yaml:"server,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Password string `yaml:"password,omitempty"`

	// webhook
	URL string `yaml:"url,omitempty"`

	// nats
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`

	// journal
	Path string `yaml:"path,omitempty"`
}

// Config holds the agent's full configuration.
type Config struct {
	Name             string           `yaml:"name"`
	LogLevel         string           `yaml:"log_level"`
	LogFile          string           `yaml:"log_file,omitempty"`
	Listen           string           `yaml:"listen"`
	Granularity      int              `yaml:"granularity"`
	AlarmGranularity int              `yaml:"alarm_granularity,omitempty"`
	ProbeWorkers     int              `yaml:"probe_workers"`
	PidFile          string           `yaml:"pid_file,omitempty"`
	Monitors         []MonitorConfig  `yaml:"monitors,omitempty"`
	Notifiers        []NotifierConfig `yaml:"notifiers,omitempty"`

	// Resolved at load time, not part of the YAML schema.
	ConfigPath string `yaml:"-"`
}

// Default returns the built-in configuration: the local hostname, a tick
// every 5 seconds and the status server bound to localhost.
func Default() *Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "node"
	}
	return &Config{
		Name:         name,
		LogLevel:     "info",
		Listen:       "127.0.0.1:8080",
		Granularity:  5,
		ProbeWorkers: 4,
		PidFile:      "simple-monitor.pid",
	}
}

// Parse unmarshals YAML on top of the defaults, fills derived values and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fillDerived() {
	if c.AlarmGranularity == 0 {
		c.AlarmGranularity = c.Granularity
	}
}

// Load reads configuration with priority: defaults < file < env vars <
// flags. It expects os.Args to already have the subcommand stripped.
func Load() (*Config, error) {
	// 1) Pre-scan for -config before parsing, so we know which file to read.
	configPath := ""
	for i, arg := range os.Args[1:] {
		if arg == "-config" || arg == "--config" {
			if i+1 < len(os.Args)-1 {
				configPath = os.Args[i+2]
			}
		} else if strings.HasPrefix(arg, "-config=") || strings.HasPrefix(arg, "--config=") {
			configPath = strings.SplitN(arg, "=", 2)[1]
		}
	}
	if configPath == "" {
		configPath = os.Getenv("SIMPLE_MONITOR_CONFIG")
	}
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	// 2) Load the YAML file, writing out the defaults on first run.
	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		data, err = writeDefault(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", configPath, err)
	}
	cfg.ConfigPath = configPath

	// 3) Environment variables override YAML.
	if v := os.Getenv("SIMPLE_MONITOR_LISTEN"); v != "" {
		cfg.Listen = v
	}

	// 4) Flags override everything.
	flag.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to config.yaml")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "Status server listen address (host:port)")
	flag.StringVar(&cfg.PidFile, "pid-file", cfg.PidFile, "PID file path")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path (empty: log to console)")
	flag.Parse()

	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeDefault creates the default config file and returns its contents.
func writeDefault(path string) ([]byte, error) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return data, nil
}

// Validate rejects anything monitors or notifiers could not be built
// from. It runs once at startup, before any loop starts.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: empty node name")
	}
	if c.Listen == "" {
		return errors.New("config: empty listen address")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if c.Granularity < 1 {
		return fmt.Errorf("config: granularity must be at least 1 second, got %d", c.Granularity)
	}
	if c.AlarmGranularity < 1 {
		return fmt.Errorf("config: alarm_granularity must be at least 1 second, got %d", c.AlarmGranularity)
	}
	if c.ProbeWorkers < 1 {
		return fmt.Errorf("config: probe_workers must be at least 1, got %d", c.ProbeWorkers)
	}
	for i := range c.Monitors {
		if err := c.Monitors[i].Validate(); err != nil {
			return fmt.Errorf("config: monitor %d: %w", i, err)
		}
	}
	for i := range c.Notifiers {
		if err := c.Notifiers[i].Validate(); err != nil {
			return fmt.Errorf("config: notifier %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the fields the monitor's kind requires.
func (m *MonitorConfig) Validate() error {
	if m.Title == "" {
		return errors.New("empty title")
	}
	for i := range m.Alarms {
		if err := m.Alarms[i].Validate(); err != nil {
			return fmt.Errorf("alarm %d: %w", i, err)
		}
	}
	switch m.Kind {
	case MonitorLoadAverage:
		if m.Index < 0 || m.Index > 2 {
			return fmt.Errorf("load average index must be 0, 1 or 2, got %d", m.Index)
		}
	case MonitorDiskUsage:
		if m.Mountpoint == "" {
			return errors.New("empty mountpoint")
		}
		switch m.Which {
		case DiskTotal, DiskUsed, DiskFree, DiskPercent:
		default:
			return fmt.Errorf("unknown disk usage selector %q", m.Which)
		}
		return validateUnit(m.UnitBase, m.UnitExponent)
	case MonitorDiskWriteRate:
		if m.Disk == "" {
			return errors.New("empty disk device")
		}
		return validateUnit(m.UnitBase, m.UnitExponent)
	case MonitorTemperature:
		if m.Sensor == "" {
			return errors.New("empty sensor name")
		}
		if m.Index < 0 {
			return fmt.Errorf("sensor reading index must not be negative, got %d", m.Index)
		}
	case MonitorUptime:
	case MonitorSystemd:
		if m.Service == "" {
			return errors.New("empty service name")
		}
	case MonitorPing:
		if m.Host == "" {
			return errors.New("empty ping host")
		}
	case MonitorPackages:
		switch m.Manager {
		case PackageManagerApt, PackageManagerPacman:
		default:
			return fmt.Errorf("unknown package manager %q", m.Manager)
		}
		if time.Duration(m.Delay) < 0 {
			return errors.New("negative package query delay")
		}
	default:
		return fmt.Errorf("unknown monitor kind %q", m.Kind)
	}
	return nil
}

func validateUnit(base, exponent int) error {
	if base != 1000 && base != 1024 {
		return fmt.Errorf("unit base must be 1000 or 1024, got %d", base)
	}
	if exponent < 0 || exponent > 5 {
		return fmt.Errorf("unit exponent must be between 0 and 5, got %d", exponent)
	}
	return nil
}

// Validate checks a single alarm rule.
func (a *AlarmConfig) Validate() error {
	if a.Name == "" {
		return errors.New("empty name")
	}
	if a.Exceedance != ExceedanceOver && a.Exceedance != ExceedanceUnder {
		return fmt.Errorf("exceedance must be %q or %q, got %q", ExceedanceOver, ExceedanceUnder, a.Exceedance)
	}
	if a.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", a.Count)
	}
	if time.Duration(a.Reminder) < 0 {
		return errors.New("negative reminder interval")
	}
	return nil
}

// Validate checks the fields the notifier's kind requires.
func (n *NotifierConfig) Validate() error {
	switch n.Kind {
	case NotifierEmail:
		if n.Sender == "" || n.Receiver == "" || n.Server == "" {
			return errors.New("email notifier needs sender, receiver and server")
		}
		if n.Port < 1 || n.Port > 65535 {
			return fmt.Errorf("invalid SMTP port %d", n.Port)
		}
	case NotifierWebhook:
		if n.URL == "" {
			return errors.New("webhook notifier needs a url")
		}
	case NotifierNATS:
		if n.NATSURL == "" || n.Subject == "" {
			return errors.New("nats notifier needs nats_url and subject")
		}
	case NotifierJournal:
		if n.Path == "" {
			return errors.New("journal notifier needs a database path")
		}
	default:
		return fmt.Errorf("unknown notifier kind %q", n.Kind)
	}
	return nil
}

// NeedsSystemd reports whether any monitor requires the system D-Bus.
// The agent only opens that connection when something will use it.
func (c *Config) NeedsSystemd() bool {
	for i := range c.Monitors {
		if c.Monitors[i].Kind == MonitorSystemd {
			return true
		}
	}
	return false
}
