package job

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/luccadibe/remotejob/internal/execution"
	"github.com/luccadibe/remotejob/internal/shell"
)

// TerminationGrace is how long Stop waits after SIGTERM before SIGKILL.
const TerminationGrace = 2 * time.Second

const stopCheckInterval = 200 * time.Millisecond

// Stop terminates a detached job. The job runs in its own process group led
// by pid, so the wrapper and everything it started are signalled together.
// The lock file stays behind and a later watch classifies the job as failed.
func Stop(ctx context.Context, client execution.ExecutionClient, pid int, logger *slog.Logger) error {
	if pid <= 0 {
		return fmt.Errorf("%w: %d", ErrMalformedPID, pid)
	}

	logger.InfoContext(ctx, "stopping remote script", "pid", pid)
	_, _ = client.RunCommand(ctx, execution.CommandRequest{Command: signalGroupCommand("TERM", pid).String()})
	if err := waitForGroupExit(ctx, client, pid, TerminationGrace); err == nil {
		return nil
	}

	_, _ = client.RunCommand(ctx, execution.CommandRequest{Command: signalGroupCommand("KILL", pid).String()})
	if err := waitForGroupExit(ctx, client, pid, TerminationGrace); err != nil {
		logger.WarnContext(ctx, "remote script still running after SIGKILL", "pid", pid, "err", err)
		return err
	}
	return nil
}

// signalGroupCommand signals the process group led by pid. Jobs launched
// without their own group fall back to the single process.
func signalGroupCommand(sig string, pid int) *shell.Builder {
	p := strconv.Itoa(pid)
	return shell.Command("kill").Word("-"+sig).Word("-"+p).Raw(">/dev/null 2>&1").
		Then("||", shell.Command("kill").Word("-"+sig).Word(p).Raw(">/dev/null 2>&1")).
		Then("||", shell.Command("true"))
}

// groupAliveCommand succeeds while any process of the group led by pid, or
// pid itself, is still around and not a zombie.
func groupAliveCommand(pid int) *shell.Builder {
	p := strconv.Itoa(pid)
	return shell.Command("ps").Word("-e").Word("-o").Word("pgid=,pid=,stat=").Raw("2>/dev/null").
		Then("|", shell.Command("awk").Word("-v").Word("p="+p).Args(
			`($1 == p || $2 == p) && $3 !~ /^Z/ { found = 1 } END { exit !found }`,
		))
}

// waitForGroupExit polls until the job's processes are gone or the deadline
// passes.
func waitForGroupExit(ctx context.Context, client execution.ExecutionClient, pid int, within time.Duration) error {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		res, err := client.RunCommand(ctx, execution.CommandRequest{Command: groupAliveCommand(pid).String()})
		alive, err := binaryAnswer(res, err)
		if err == nil && !alive {
			return nil
		}
		if err := sleepContext(ctx, stopCheckInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("process group %d still running", pid)
}
