package execution

import (
	"context"
	"io"
	"strings"
)

// CommandRequest defines how a command should be executed by an ExecutionClient.
type CommandRequest struct {
	Command string    // shell invocation to run
	Stdout  io.Writer // optional live stdout
	Stderr  io.Writer // optional live stderr
	Stdin   io.Reader // optional stdin source
}

// CommandResult describes the outcome of a command invocation.
//
// A command that ran and exited non-zero is reported through ExitCode only.
// ExitCode is -1 when the command could not be run at all, in which case
// RunCommand also returns an error.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// StdoutLines splits the captured stdout into lines without trailing newline.
func (r CommandResult) StdoutLines() []string {
	return splitLines(r.Stdout)
}

// StderrLines splits the captured stderr into lines without trailing newline.
func (r CommandResult) StderrLines() []string {
	return splitLines(r.Stderr)
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// ExecutionClient defines the interface for executing commands on hosts.
type ExecutionClient interface {
	RunCommand(ctx context.Context, req CommandRequest) (CommandResult, error)
	// Upload copies a local file to the host with mode 0755.
	Upload(ctx context.Context, localPath, remotePath string) error
	// Download copies a file from the host to the local machine.
	Download(ctx context.Context, remotePath, localPath string) error
	Close() error
}
