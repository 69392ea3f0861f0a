package main

import (
	"github.com/luccadibe/remotejob/internal/config"
	"github.com/luccadibe/remotejob/internal/execution"
	"github.com/urfave/cli/v3"
)

func connectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", Sources: cli.EnvVars("REMOTEJOB_CONFIG")},
		&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "remote host ip / fqdn"},
		&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "ssh private key"},
		&cli.StringFlag{Name: "key-passphrase", Usage: "passphrase of an encrypted private key", Sources: cli.EnvVars("REMOTEJOB_KEY_PASSPHRASE")},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "ssh port", Value: execution.DEFAULT_SSH_PORT},
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "ssh username", Value: execution.DEFAULT_SSH_USER},
		&cli.DurationFlag{Name: "connect-timeout", Usage: "ssh connect timeout", Value: execution.DEFAULT_CONNECT_TIMEOUT},
		&cli.BoolFlag{Name: "local", Usage: "run on this machine instead of over ssh"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		&cli.BoolFlag{Name: "dump", Usage: "print the resolved settings before running"},
	}
}

func jobFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "sleep", Aliases: []string{"s"}, Usage: "seconds to wait between checks", Value: int(config.DefaultInterval.Seconds())},
		&cli.IntFlag{Name: "checks", Aliases: []string{"i"}, Usage: "how many times to check whether the script ended", Value: config.DefaultChecks},
		&cli.DurationFlag{Name: "grace", Usage: "wait before the first check", Value: config.DefaultGrace},
		&cli.DurationFlag{Name: "probe-timeout", Usage: "upper bound for a single remote check", Value: config.DefaultProbeTimeout},
		&cli.StringFlag{Name: "remote-dir", Usage: "remote directory for the wrapper script, lock and log", Value: config.DefaultRemoteDir},
		&cli.StringFlag{Name: "log", Usage: "remote log path (default <remote-dir>/remotejob-<job id>.log)"},
		&cli.StringFlag{Name: "save-log", Usage: "local directory that receives a copy of the remote log"},
	}
}
