package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/luccadibe/remotejob/internal/execution"
	"github.com/luccadibe/remotejob/internal/shell"
)

// Handle identifies a launched remote process.
type Handle struct {
	PID     int
	LogPath string
}

// Dispatcher uploads a composed wrapper script and starts it detached.
type Dispatcher struct {
	client execution.ExecutionClient
	logger *slog.Logger
}

func NewDispatcher(client execution.ExecutionClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, logger: logger}
}

// Dispatch uploads content to art.ScriptPath, marks it executable and launches
// it under setsid and nohup with all streams redirected, so that closing the
// connection does not stop it. Every failure here is fatal for the job.
func (d *Dispatcher) Dispatch(ctx context.Context, art Artifact, content []byte) (Handle, error) {
	if err := d.upload(ctx, art.ScriptPath, content); err != nil {
		return Handle{}, dispatchError(ErrUploadFailed, art.ScriptPath, err)
	}

	chmod := shell.Command("chmod").Word("+x").Args(art.ScriptPath)
	res, err := d.client.RunCommand(ctx, execution.CommandRequest{Command: chmod.String()})
	if err == nil && res.ExitCode != 0 {
		err = commandFailed(res)
	}
	if err != nil {
		return Handle{}, dispatchError(ErrChmodFailed, art.ScriptPath, err)
	}

	res, err = d.client.RunCommand(ctx, execution.CommandRequest{Command: launchCommand(art).String()})
	if err == nil && res.ExitCode != 0 {
		err = commandFailed(res)
	}
	if err != nil {
		return Handle{}, dispatchError(ErrLaunchFailed, art.ScriptPath, err)
	}

	pid, err := parsePID(res.StdoutLines())
	if err != nil {
		return Handle{}, dispatchError(ErrMalformedPID, art.ScriptPath, err)
	}

	d.logger.InfoContext(ctx, "remote script launched", "pid", pid, "script", art.ScriptPath, "log", art.LogPath)
	return Handle{PID: pid, LogPath: art.LogPath}, nil
}

// upload stages content in a local temp file and copies it over.
func (d *Dispatcher) upload(ctx context.Context, remotePath string, content []byte) error {
	f, err := os.CreateTemp("", namePrefix+"*.sh")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return d.client.Upload(ctx, f.Name(), remotePath)
}

// launchCommand backgrounds the script in a new session and prints its pid
// via $!. The pid also names the job's process group, so the whole job can
// be signalled at once.
func launchCommand(art Artifact) *shell.Builder {
	return shell.Command("setsid", "nohup", art.ScriptPath).
		RedirectIn("/dev/null").
		RedirectOut(art.LogPath).
		Raw("2>&1").
		Then("&", shell.Command("echo").Word("$!"))
}

func parsePID(lines []string) (int, error) {
	if len(lines) == 0 {
		return 0, errors.New("no output from launch command")
	}
	raw := strings.TrimSpace(lines[0])
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a pid", raw)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%d is not a valid pid", pid)
	}
	return pid, nil
}

func commandFailed(res execution.CommandResult) error {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		return fmt.Errorf("exit code %d", res.ExitCode)
	}
	return fmt.Errorf("exit code %d: %s", res.ExitCode, msg)
}
