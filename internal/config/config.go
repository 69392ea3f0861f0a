package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	_ "embed"

	"github.com/goccy/go-yaml"
)

const (
	DefaultInterval     = 60 * time.Second
	DefaultChecks       = 5
	DefaultGrace        = 1 * time.Second
	DefaultProbeTimeout = 30 * time.Second
	DefaultRemoteDir    = "/tmp"
)

// Config mirrors the YAML configuration shape. Every field is optional and
// command line flags take precedence.
type Config struct {
	Host    Host           `yaml:"host,omitempty" json:"host,omitempty"`
	Job     Job            `yaml:"job,omitempty" json:"job,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// Host is the remote host the job runs on.
type Host struct {
	IP          string `yaml:"ip,omitempty" json:"ip,omitempty"`
	Port        int    `yaml:"port,omitempty" json:"port,omitempty"`
	Username    string `yaml:"username,omitempty" json:"username,omitempty"`
	KeyFile     string `yaml:"key_file,omitempty" json:"key_file,omitempty"`
	KeyPassword string `yaml:"key_password,omitempty" json:"key_password,omitempty"`
	// ConnectTimeout bounds the TCP dial and SSH handshake, e.g. "5s".
	ConnectTimeout string `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"`
}

// Job holds the polling parameters and remote layout.
type Job struct {
	// time between liveness checks, e.g. "60s"
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
	// maximum number of liveness checks before giving up
	Checks int `yaml:"checks,omitempty" json:"checks,omitempty"`
	// wait before the first liveness check
	Grace string `yaml:"grace,omitempty" json:"grace,omitempty"`
	// upper bound for a single probe command
	ProbeTimeout string `yaml:"probe_timeout,omitempty" json:"probe_timeout,omitempty"`
	// directory on the remote host for the wrapper script, lock and log
	RemoteDir string `yaml:"remote_dir,omitempty" json:"remote_dir,omitempty"`
	// overrides the generated remote log path
	LogPath string `yaml:"log_path,omitempty" json:"log_path,omitempty"`
}

// LoggingConfig holds the logging configuration. If no path is provided, logs are written to stderr.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Path  string `yaml:"path,omitempty" json:"path,omitempty"`
}

// ParseYAML loads and validates configuration using strict decoding.
func ParseYAML(data []byte) (*Config, error) {
	var config Config
	if err := yaml.UnmarshalWithOptions(data, &config, yaml.Strict()); err != nil {
		return nil, err
	}
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}
	cfg, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing configuration file %s: %w", path, err)
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	var errs []string

	if cfg.Host.Port < 0 || cfg.Host.Port > 65535 {
		errs = append(errs, "host.port must be between 1 and 65535")
	}
	if err := checkDuration(cfg.Host.ConnectTimeout); err != nil {
		errs = append(errs, "host.connect_timeout "+err.Error())
	}

	if err := checkDuration(cfg.Job.Interval); err != nil {
		errs = append(errs, "job.interval "+err.Error())
	}
	if err := checkDuration(cfg.Job.ProbeTimeout); err != nil {
		errs = append(errs, "job.probe_timeout "+err.Error())
	}
	if strings.TrimSpace(cfg.Job.Grace) != "" {
		if d, err := time.ParseDuration(cfg.Job.Grace); err != nil || d < 0 {
			errs = append(errs, "job.grace must be a non-negative duration")
		}
	}
	if cfg.Job.Checks < 0 {
		errs = append(errs, "job.checks must be >= 0")
	}
	if dir := strings.TrimSpace(cfg.Job.RemoteDir); dir != "" && !path.IsAbs(dir) {
		errs = append(errs, "job.remote_dir must be an absolute path")
	}
	if lp := strings.TrimSpace(cfg.Job.LogPath); lp != "" && !path.IsAbs(lp) {
		errs = append(errs, "job.log_path must be an absolute path")
	}

	if cfg.Logging != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
		case "", "debug", "info", "warn", "error":
			// ok
		default:
			errs = append(errs, "logging.level must be one of [debug, info, warn, error]")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func checkDuration(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return errors.New("must be a positive duration")
	}
	return nil
}

// duration parses an already validated duration, falling back to def.
func duration(s string, def time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ConnectTimeoutDuration returns host.connect_timeout or zero when unset.
func (h Host) ConnectTimeoutDuration() time.Duration {
	return duration(h.ConnectTimeout, 0)
}

func (j Job) IntervalDuration() time.Duration { return duration(j.Interval, DefaultInterval) }

func (j Job) GraceDuration() time.Duration { return duration(j.Grace, DefaultGrace) }

func (j Job) ProbeTimeoutDuration() time.Duration {
	return duration(j.ProbeTimeout, DefaultProbeTimeout)
}

// ChecksOrDefault returns job.checks, or DefaultChecks when unset.
func (j Job) ChecksOrDefault() int {
	if j.Checks == 0 {
		return DefaultChecks
	}
	return j.Checks
}

func (j Job) RemoteDirOrDefault() string {
	if strings.TrimSpace(j.RemoteDir) == "" {
		return DefaultRemoteDir
	}
	return j.RemoteDir
}

func GetDefaultConfigFile() string {
	return string(defaultConfigFile)
}

//go:embed files/default_config.yaml
var defaultConfigFile []byte
