package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/luccadibe/remotejob/internal/config"
	"github.com/luccadibe/remotejob/internal/job"
	"github.com/luccadibe/remotejob/internal/log"
	"github.com/urfave/cli/v3"
)

// errJobFailed reports a job that ran but did not finish successfully. The
// report has already been printed when it is returned.
var errJobFailed = errors.New("remote job did not finish successfully")

func runAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return errors.New("missing command to execute")
	}
	args := cmd.Args().Slice()
	spec := job.Spec{Script: args[0], Args: args[1:]}

	return withRunner(ctx, cmd, func(ctx context.Context, runner *job.Runner) (job.Report, error) {
		return runner.Run(ctx, spec)
	})
}

func attachCommand() *cli.Command {
	return &cli.Command{
		Name:  "attach",
		Usage: "watch a job started by an earlier run that was interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pid", Usage: "remote pid printed by the earlier run", Required: true},
			&cli.StringFlag{Name: "id", Usage: "job id printed by the earlier run", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withRunner(ctx, cmd, func(ctx context.Context, runner *job.Runner) (job.Report, error) {
				remoteDir := cmd.String("remote-dir")
				art := job.ArtifactFor(cmd.String("id"), remoteDir, cmd.String("log"))
				return runner.Attach(ctx, art, job.Handle{PID: cmd.Int("pid"), LogPath: art.LogPath})
			})
		},
	}
}

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "terminate a detached job; its files stay for inspection",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pid", Usage: "remote pid of the job", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			logger, closeLog, err := log.Open(s.LogPath, s.LogLevel)
			if err != nil {
				return err
			}
			defer closeLog()

			client, err := s.openClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			return job.Stop(ctx, client, cmd.Int("pid"), logger)
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "print an example configuration file",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprint(cmd.Root().Writer, config.GetDefaultConfigFile())
			return err
		},
	}
}

func withRunner(ctx context.Context, cmd *cli.Command, fn func(context.Context, *job.Runner) (job.Report, error)) error {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("dump") {
		s.dump()
	}

	logger, closeLog, err := log.Open(s.LogPath, s.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	host := s.Session.Host
	if s.Local {
		host = "local"
	}
	ctx = log.ContextAttrs(ctx, slog.String("host", host))

	client, err := s.openClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	report, err := fn(ctx, job.NewRunner(client, s.Options, logger))
	if err != nil {
		if report.PID > 0 {
			fmt.Fprintf(cmd.Root().ErrWriter, "remote script left running with pid=%d id=%s; resume with: remotejob attach --pid %d --id %s\n",
				report.PID, report.ID, report.PID, report.ID)
		}
		return err
	}

	printReport(cmd.Root().Writer, report)
	if !report.Success {
		return errJobFailed
	}
	return nil
}

func printReport(w io.Writer, report job.Report) {
	fmt.Fprintln(w, report.Message)
	fmt.Fprintln(w, "############################")
	fmt.Fprintln(w, "### remote script output ###")
	fmt.Fprintln(w, "############################")
	if len(report.Log) > 0 {
		fmt.Fprintln(w, strings.Join(report.Log, "\n"))
	}
	if report.LocalLog != "" {
		fmt.Fprintf(w, "log saved to %s\n", report.LocalLog)
	}
	if len(report.Artifacts) > 0 {
		fmt.Fprintln(w, "remote files kept for inspection:")
		for _, p := range report.Artifacts {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}
