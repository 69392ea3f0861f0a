package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goforj/godump"
	"github.com/luccadibe/remotejob/internal/config"
	"github.com/luccadibe/remotejob/internal/execution"
	"github.com/luccadibe/remotejob/internal/job"
	"github.com/luccadibe/remotejob/internal/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// settings is the merged result of config file and flags.
type settings struct {
	Session  execution.Session
	Options  job.Options
	Local    bool
	LogLevel slog.Level
	LogPath  string
}

// resolveSettings layers explicitly set flags over the config file over
// flag defaults.
func resolveSettings(cmd *cli.Command) (settings, error) {
	cfg := &config.Config{}
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return settings{}, err
		}
		cfg = loaded
	}

	s := settings{Local: cmd.Bool("local")}

	s.Session = execution.Session{
		Host:           pickString(cmd, "target", cfg.Host.IP),
		Port:           pickInt(cmd, "port", cfg.Host.Port),
		User:           pickString(cmd, "user", cfg.Host.Username),
		KeyFile:        pickString(cmd, "key", cfg.Host.KeyFile),
		KeyPassphrase:  pickString(cmd, "key-passphrase", cfg.Host.KeyPassword),
		ConnectTimeout: pickDuration(cmd, "connect-timeout", cfg.Host.ConnectTimeoutDuration()),
	}

	interval := cfg.Job.IntervalDuration()
	if cmd.IsSet("sleep") {
		interval = time.Duration(cmd.Int("sleep")) * time.Second
	}
	checks := cfg.Job.ChecksOrDefault()
	if cmd.IsSet("checks") {
		checks = cmd.Int("checks")
	}
	if interval <= 0 {
		return settings{}, errors.New("sleep must be positive")
	}
	if checks < 0 {
		return settings{}, errors.New("checks must be >= 0")
	}

	grace := cfg.Job.GraceDuration()
	if cmd.IsSet("grace") {
		grace = cmd.Duration("grace")
	}
	probeTimeout := cfg.Job.ProbeTimeoutDuration()
	if cmd.IsSet("probe-timeout") {
		probeTimeout = cmd.Duration("probe-timeout")
	}

	s.Options = job.Options{
		Watch: job.WatchOptions{
			Interval:     interval,
			Checks:       checks,
			Grace:        grace,
			ProbeTimeout: probeTimeout,
		},
		RemoteDir:  pickString(cmd, "remote-dir", cfg.Job.RemoteDirOrDefault()),
		LogPath:    pickString(cmd, "log", cfg.Job.LogPath),
		SaveLogDir: cmd.String("save-log"),
	}

	if cfg.Logging != nil {
		lvl, err := log.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return settings{}, err
		}
		s.LogLevel = lvl
		s.LogPath = cfg.Logging.Path
	}
	if cmd.Bool("verbose") {
		s.LogLevel = slog.LevelDebug
	}

	if !s.Local {
		if err := s.Session.Validate(); err != nil {
			return settings{}, fmt.Errorf("missing connection settings: %w", err)
		}
	}
	return s, nil
}

// pickString prefers an explicitly set flag, then the config value, then the
// flag default.
func pickString(cmd *cli.Command, name, fromConfig string) string {
	if cmd.IsSet(name) || strings.TrimSpace(fromConfig) == "" {
		return cmd.String(name)
	}
	return fromConfig
}

func pickInt(cmd *cli.Command, name string, fromConfig int) int {
	if cmd.IsSet(name) || fromConfig == 0 {
		return cmd.Int(name)
	}
	return fromConfig
}

func pickDuration(cmd *cli.Command, name string, fromConfig time.Duration) time.Duration {
	if cmd.IsSet(name) || fromConfig == 0 {
		return cmd.Duration(name)
	}
	return fromConfig
}

// dump prints the settings with the passphrase masked.
func (s settings) dump() {
	masked := s
	if masked.Session.KeyPassphrase != "" {
		masked.Session.KeyPassphrase = "********"
	}
	godump.Dump(masked)
}

// openClient connects to the remote host, or returns a local client.
func (s *settings) openClient(ctx context.Context) (execution.ExecutionClient, error) {
	if s.Local {
		return execution.NewLocalClient(), nil
	}
	if err := s.promptPassphrase(); err != nil {
		return nil, err
	}
	return execution.NewSSHClient(ctx, s.Session)
}

// promptPassphrase asks for the key passphrase on a terminal when the key is
// encrypted and none was supplied.
func (s *settings) promptPassphrase() error {
	if s.Session.KeyPassphrase != "" {
		return nil
	}
	need, err := execution.KeyNeedsPassphrase(s.Session.KeyFile)
	if err != nil || !need {
		return err
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("private key is encrypted: set --key-passphrase or REMOTEJOB_KEY_PASSPHRASE")
	}
	fmt.Fprintf(os.Stderr, "Enter passphrase for %s: ", s.Session.KeyFile)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	s.Session.KeyPassphrase = string(pass)
	return nil
}
