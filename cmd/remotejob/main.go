package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		if !errors.Is(err, errJobFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "remotejob",
		Usage: "run a script on a remote host detached from the SSH session and wait for it",
		Description: "The script is wrapped, uploaded and started under setsid and nohup. Completion is polled\n" +
			"through the pid and a lock file that the wrapper removes only on success.\n" +
			"Pass script arguments after --, e.g. remotejob -t host -k key -- /opt/job.sh --mode full",
		ArgsUsage:   "[--] SCRIPT [ARGS...]",
		Flags:       append(connectionFlags(), jobFlags()...),
		Action:      runAction,
		Commands: []*cli.Command{
			attachCommand(),
			stopCommand(),
			initCommand(),
		},
	}
}
