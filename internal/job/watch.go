package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Outcome is the state of a watched remote process.
type Outcome int

const (
	Running Outcome = iota
	// Unreachable is a transient observation: the host did not answer. It
	// never ends the watch on its own.
	Unreachable
	FinishedOk
	FinishedError
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Unreachable:
		return "unreachable"
	case FinishedOk:
		return "finished-ok"
	case FinishedError:
		return "finished-error"
	case TimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Terminal reports whether o ends the watch.
func (o Outcome) Terminal() bool {
	return o == FinishedOk || o == FinishedError || o == TimedOut
}

// WatchOptions controls polling.
type WatchOptions struct {
	// Interval is the sleep between liveness checks.
	Interval time.Duration
	// Checks is the maximum number of sleep-and-check iterations.
	Checks int
	// Grace is the wait before the first liveness check.
	Grace time.Duration
	// ProbeTimeout bounds a single remote probe.
	ProbeTimeout time.Duration
}

// WatchResult is the terminal classification of a watch.
type WatchResult struct {
	Outcome Outcome
	Message string
	// Iterations counts the interval sleeps performed.
	Iterations int
}

// Watcher polls a remote pid until it exits or the check budget runs out.
type Watcher struct {
	prober Prober
	opts   WatchOptions
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewWatcher(prober Prober, opts WatchOptions, logger *slog.Logger) *Watcher {
	return &Watcher{prober: prober, opts: opts, logger: logger, sleep: sleepContext}
}

// Watch runs the polling state machine:
//
//	grace -> probe -> [sleep -> reachable? -> probe]*Checks -> classify
//
// Only a probe that positively reports the pid gone moves to classification,
// which is the only place the lock file is looked at. An unreachable host or
// a failed probe leaves the state Running. A cancelled ctx returns ctx.Err()
// with Outcome Running and leaves the remote side untouched.
func (w *Watcher) Watch(ctx context.Context, pid int, lockPath string) (WatchResult, error) {
	if err := w.sleep(ctx, w.opts.Grace); err != nil {
		return WatchResult{Outcome: Running}, err
	}

	result := WatchResult{Outcome: Running}
	alive := w.observe(ctx, pid, 0) != exited
	remaining := w.opts.Checks

	for !result.Outcome.Terminal() {
		switch {
		case !alive:
			result.Outcome, result.Message = w.classify(ctx, lockPath)
		case remaining <= 0:
			result.Outcome = TimedOut
			result.Message = fmt.Sprintf("ERROR: the remote script didn't finish after %s", w.opts.Interval*time.Duration(w.opts.Checks))
		default:
			remaining--
			result.Iterations++
			if err := w.sleep(ctx, w.opts.Interval); err != nil {
				return result, err
			}
			if !w.prober.Reachable(ctx) {
				w.logger.WarnContext(ctx, "remote host unreachable, retrying",
					"iteration", result.Iterations, "retry_in", w.opts.Interval)
				continue
			}
			alive = w.observe(ctx, pid, result.Iterations) != exited
		}
	}

	w.logger.InfoContext(ctx, "watch finished", "outcome", result.Outcome, "pid", pid, "iterations", result.Iterations)
	return result, nil
}

// exited is the observation that the pid is confirmed gone. It is internal to
// the loop and never returned to callers.
const exited Outcome = -1

// observe probes pid once. An unknown answer counts as Unreachable so it
// cannot be mistaken for an exit.
func (w *Watcher) observe(ctx context.Context, pid, iteration int) Outcome {
	alive, err := w.prober.Alive(ctx, pid)
	switch {
	case err != nil:
		w.logger.WarnContext(ctx, "liveness probe failed", "pid", pid, "iteration", iteration, "err", err)
		return Unreachable
	case alive:
		w.logger.InfoContext(ctx, "remote script is still running", "pid", pid, "iteration", iteration)
		return Running
	default:
		w.logger.InfoContext(ctx, "remote script ended, pid no longer exists", "pid", pid, "iteration", iteration)
		return exited
	}
}

// classify reads the lock file of a process known to be gone.
func (w *Watcher) classify(ctx context.Context, lockPath string) (Outcome, string) {
	present, err := w.prober.LockExists(ctx, lockPath)
	switch {
	case err != nil:
		return FinishedError, fmt.Sprintf("ERROR: could not determine whether lock file %s exists: %v", lockPath, err)
	case present:
		return FinishedError, "ERROR: the remote script ended with an error !"
	default:
		return FinishedOk, "the remote script finished successfully !"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
