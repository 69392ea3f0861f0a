package job

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/luccadibe/remotejob/internal/execution"
)

// fakeClient records every call and answers commands through respond.
type fakeClient struct {
	mu       sync.Mutex
	commands []string
	uploads  map[string][]byte

	uploadErr   error
	downloadErr error
	respond     func(cmd string) (execution.CommandResult, error)
}

func newFakeClient(respond func(cmd string) (execution.CommandResult, error)) *fakeClient {
	return &fakeClient{uploads: map[string][]byte{}, respond: respond}
}

func (f *fakeClient) RunCommand(ctx context.Context, req execution.CommandRequest) (execution.CommandResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, req.Command)
	f.mu.Unlock()
	if f.respond == nil {
		return execution.CommandResult{}, nil
	}
	return f.respond(req.Command)
}

func (f *fakeClient) Upload(ctx context.Context, localPath, remotePath string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.uploads[remotePath] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Download(ctx context.Context, remotePath, localPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(localPath, []byte("downloaded "+remotePath+"\n"), 0644)
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) ran(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// answer is one scripted reply of the fake prober.
type answer struct {
	alive bool
	err   error
}

var errProbe = errors.New("connection reset")

// scriptedProber replays alive answers in order and repeats the last one.
// reachable answers default to true once exhausted.
type scriptedProber struct {
	alive     []answer
	reachable []bool
	lock      bool
	lockErr   error

	// now, when set, replaces the alive script with a time based answer.
	now      func() time.Duration
	exitTime time.Duration

	aliveCalls int
	reachCalls int
	lockCalls  int
}

func (p *scriptedProber) Reachable(ctx context.Context) bool {
	p.reachCalls++
	if p.reachCalls <= len(p.reachable) {
		return p.reachable[p.reachCalls-1]
	}
	return true
}

func (p *scriptedProber) Alive(ctx context.Context, pid int) (bool, error) {
	p.aliveCalls++
	if p.now != nil {
		return p.now() < p.exitTime, nil
	}
	i := p.aliveCalls - 1
	if i >= len(p.alive) {
		i = len(p.alive) - 1
	}
	a := p.alive[i]
	return a.alive, a.err
}

func (p *scriptedProber) LockExists(ctx context.Context, lockPath string) (bool, error) {
	p.lockCalls++
	return p.lock, p.lockErr
}

// fakeClock records sleeps and advances a virtual clock.
type fakeClock struct {
	elapsed time.Duration
	sleeps  []time.Duration
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.elapsed += d
	return nil
}

func (c *fakeClock) now() time.Duration { return c.elapsed }
