package job

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/luccadibe/remotejob/internal/execution"
	"github.com/luccadibe/remotejob/internal/log"
)

// Options configures a Runner.
type Options struct {
	Watch WatchOptions
	// RemoteDir holds the generated script, lock and default log.
	RemoteDir string
	// LogPath overrides the generated remote log path.
	LogPath string
	// SaveLogDir, when set, receives a local copy of the remote log.
	SaveLogDir string
}

// Runner chains composer, dispatcher, watcher and collector for one job.
type Runner struct {
	client execution.ExecutionClient
	opts   Options
	logger *slog.Logger

	watcher *Watcher
}

func NewRunner(client execution.ExecutionClient, opts Options, logger *slog.Logger) *Runner {
	prober := NewRemoteProber(client, opts.Watch.ProbeTimeout)
	return &Runner{
		client:  client,
		opts:    opts,
		logger:  logger,
		watcher: NewWatcher(prober, opts.Watch, logger),
	}
}

// Run launches spec detached on the remote host and watches it to the end.
// The returned error is non-nil only for dispatch failures and cancellation;
// a job that failed remotely comes back as a Report with Success false.
func (r *Runner) Run(ctx context.Context, spec Spec) (Report, error) {
	art := NewArtifact(r.opts.RemoteDir, r.opts.LogPath)
	ctx = log.ContextAttrs(ctx, slog.String("job.id", art.ID))

	content, err := Compose(spec, art)
	if err != nil {
		return Report{}, err
	}

	r.logger.InfoContext(ctx, "sending command", "script", spec.Script, "args", spec.Args, "remote_script", art.ScriptPath)
	h, err := NewDispatcher(r.client, r.logger).Dispatch(ctx, art, content)
	if err != nil {
		return Report{}, err
	}
	return r.follow(ctx, art, h)
}

// Attach watches a job launched by an earlier invocation.
func (r *Runner) Attach(ctx context.Context, art Artifact, h Handle) (Report, error) {
	if h.PID <= 0 {
		return Report{}, fmt.Errorf("%w: %d", ErrMalformedPID, h.PID)
	}
	ctx = log.ContextAttrs(ctx, slog.String("job.id", art.ID))
	r.logger.InfoContext(ctx, "attaching to remote script", "pid", h.PID, "lock", art.LockPath)
	return r.follow(ctx, art, h)
}

func (r *Runner) follow(ctx context.Context, art Artifact, h Handle) (Report, error) {
	if h.LogPath != "" {
		art.LogPath = h.LogPath
	}
	res, err := r.watcher.Watch(ctx, h.PID, art.LockPath)
	if err != nil {
		r.logger.WarnContext(ctx, "watch abandoned, remote script left running", "pid", h.PID, "lock", art.LockPath, "log", art.LogPath)
		return Report{Outcome: res.Outcome, ID: art.ID, PID: h.PID, Artifacts: art.Paths()}, err
	}

	report, err := NewCollector(r.client, r.logger, r.opts.SaveLogDir).Collect(ctx, art, h, res)
	if err != nil {
		r.logger.WarnContext(ctx, "collecting results", "err", err)
	}
	return report, nil
}
