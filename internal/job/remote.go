package job

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/luccadibe/remotejob/internal/execution"
	"github.com/luccadibe/remotejob/internal/shell"
)

// Prober answers the questions the Watcher asks about the remote host.
type Prober interface {
	// Reachable reports whether a trivial command runs on the host.
	Reachable(ctx context.Context) bool
	// Alive reports whether pid is a live, non-zombie process. An error
	// means the answer is unknown.
	Alive(ctx context.Context, pid int) (bool, error)
	// LockExists reports whether the lock file is present.
	LockExists(ctx context.Context, lockPath string) (bool, error)
}

// RemoteProber implements Prober with shell commands over an ExecutionClient.
type RemoteProber struct {
	client  execution.ExecutionClient
	timeout time.Duration
}

// NewRemoteProber bounds every probe by timeout; zero means no extra bound.
func NewRemoteProber(client execution.ExecutionClient, timeout time.Duration) *RemoteProber {
	return &RemoteProber{client: client, timeout: timeout}
}

func (p *RemoteProber) run(ctx context.Context, cmd *shell.Builder) (execution.CommandResult, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.client.RunCommand(ctx, execution.CommandRequest{Command: cmd.String()})
}

func (p *RemoteProber) Reachable(ctx context.Context) bool {
	res, err := p.run(ctx, shell.Command("true"))
	return err == nil && res.ExitCode == 0
}

func (p *RemoteProber) Alive(ctx context.Context, pid int) (bool, error) {
	return binaryAnswer(p.run(ctx, aliveCommand(pid)))
}

func (p *RemoteProber) LockExists(ctx context.Context, lockPath string) (bool, error) {
	return binaryAnswer(p.run(ctx, shell.Command("test").Word("-f").Args(lockPath)))
}

// aliveCommand succeeds when pid exists and is not a zombie.
func aliveCommand(pid int) *shell.Builder {
	p := strconv.Itoa(pid)
	return shell.Command("kill").Word("-0").Word(p).Raw("2>/dev/null").
		Then("&& !", shell.Command("ps").Word("-o").Word("stat=").Word("-p").Word(p).Raw("2>/dev/null").
			Then("|", shell.Command("grep").Word("-q").Word("Z")))
}

// binaryAnswer maps exit 0 to true and exit 1 to false. Anything else,
// including a transport error, is an unknown answer.
func binaryAnswer(res execution.CommandResult, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected exit code %d", res.ExitCode)
	}
}
