package execution

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const localWaitDelay = 2 * time.Second

// Local execution client for running commands locally
type localClient struct{}

// NewLocalClient creates a new local execution client. It runs commands
// through sh and treats the local filesystem as the remote one.
func NewLocalClient() ExecutionClient {
	return &localClient{}
}

// RunCommand executes a command locally using the shell
func (c *localClient) RunCommand(ctx context.Context, req CommandRequest) (CommandResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return CommandResult{ExitCode: -1}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", req.Command)
	// children that inherit the pipes must not keep Run blocked after a kill
	cmd.WaitDelay = localWaitDelay
	if req.Stdin != nil {
		cmd.Stdin = req.Stdin
	}

	stdout := newCaptureBuffer()
	stderr := newCaptureBuffer()
	cmd.Stdout = multiWriterFiltered(req.Stdout, stdout)
	cmd.Stderr = multiWriterFiltered(req.Stderr, stderr)

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) && ctx.Err() == nil {
			result.ExitCode = exitError.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, err
	}
	return result, nil
}

// Download copies a file locally (just uses cp)
func (c *localClient) Download(ctx context.Context, remotePath, localPath string) error {
	return copyLocal(ctx, remotePath, localPath, false)
}

// Upload copies a file locally and marks it executable
func (c *localClient) Upload(ctx context.Context, localPath, remotePath string) error {
	return copyLocal(ctx, localPath, remotePath, true)
}

func copyLocal(ctx context.Context, src, dst string, executable bool) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := exec.CommandContext(ctx, "cp", src, dst).Run(); err != nil {
		return err
	}
	if executable {
		return os.Chmod(dst, 0755)
	}
	return nil
}

// Close closes the local client (no-op for local execution)
func (c *localClient) Close() error {
	return nil
}
