package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/luccadibe/remotejob/internal/execution"
	"github.com/luccadibe/remotejob/internal/shell"
)

// Report is what a finished job hands back to the caller.
type Report struct {
	Outcome Outcome
	Message string
	// Success is true only for FinishedOk.
	Success bool
	// ID is the artifact id, enough to attach again later.
	ID  string
	PID int
	// Log holds the lines of the remote log.
	Log []string
	// Artifacts lists remote paths left in place for inspection.
	Artifacts []string
	// LocalLog is the path of the downloaded log copy, if one was requested.
	LocalLog string
}

// Collector fetches the job log and removes remote files after a success.
type Collector struct {
	client execution.ExecutionClient
	logger *slog.Logger
	// saveDir, when set, receives a local copy of the remote log.
	saveDir string
}

func NewCollector(client execution.ExecutionClient, logger *slog.Logger, saveDir string) *Collector {
	return &Collector{client: client, logger: logger, saveDir: saveDir}
}

// Collect builds the report for a terminal watch result. Problems reading
// the log or cleaning up are returned joined, but the report is always
// complete and its Success flag only depends on the outcome.
func (c *Collector) Collect(ctx context.Context, art Artifact, h Handle, res WatchResult) (Report, error) {
	report := Report{
		Outcome: res.Outcome,
		Message: res.Message,
		Success: res.Outcome == FinishedOk,
		ID:      art.ID,
		PID:     h.PID,
	}

	var errs []error
	if h.LogPath != "" {
		art.LogPath = h.LogPath
	}
	logPath := art.LogPath

	cat, err := c.client.RunCommand(ctx, execution.CommandRequest{Command: shell.Command("cat", logPath).String()})
	if err == nil && cat.ExitCode != 0 {
		err = commandFailed(cat)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("reading remote log %s: %w", logPath, err))
	} else {
		report.Log = cat.StdoutLines()
	}

	if c.saveDir != "" {
		local := filepath.Join(c.saveDir, art.ID+".log")
		if err := c.download(ctx, logPath, local); err != nil {
			errs = append(errs, fmt.Errorf("saving remote log: %w", err))
		} else {
			report.LocalLog = local
		}
	}

	if report.Success {
		rm := shell.Command("rm").Word("-f").Args(art.ScriptPath, logPath)
		res, err := c.client.RunCommand(ctx, execution.CommandRequest{Command: rm.String()})
		if err == nil && res.ExitCode != 0 {
			err = commandFailed(res)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("cleaning up remote files: %w", err))
		} else {
			c.logger.DebugContext(ctx, "removed remote files", "script", art.ScriptPath, "log", logPath)
		}
	} else {
		report.Artifacts = art.Paths()
		c.logger.InfoContext(ctx, "leaving remote files in place", "outcome", res.Outcome, "paths", report.Artifacts)
	}

	return report, errors.Join(errs...)
}

func (c *Collector) download(ctx context.Context, remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return c.client.Download(ctx, remotePath, localPath)
}
