package execution

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"golang.org/x/crypto/ssh"
)

// all things SSH here

type sshClient struct {
	session Session
	config  *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHClient dials the host described by session. The connection is kept
// and transparently redialed if it breaks between calls.
func NewSSHClient(ctx context.Context, session Session) (ExecutionClient, error) {
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	config, err := session.clientConfig()
	if err != nil {
		return nil, errors.New("error creating ssh client: " + err.Error())
	}
	c := &sshClient{session: session.withDefaults(), config: config}
	if _, err := c.conn(ctx); err != nil {
		return nil, errors.New("error creating ssh client: " + err.Error())
	}
	return c, nil
}

func (c *sshClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// conn returns the cached client, dialing a new one when there is none.
func (c *sshClient) conn(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := dial(ctx, c.session.Addr(), c.config)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

// drop forgets a client that failed so the next call redials.
func (c *sshClient) drop(client *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == client {
		_ = c.client.Close()
		c.client = nil
	}
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	// the handshake can hang without a deadline
	_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(cconn, chans, reqs), nil
}

// newSession opens a channel, redialing once if the cached connection is dead.
// A host that completed the handshake but stopped answering would block
// NewSession forever, so the open is bounded by ctx and the connection is
// dropped when ctx ends first.
func (c *sshClient) newSession(ctx context.Context) (*ssh.Client, *ssh.Session, error) {
	client, err := c.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	session, err := c.openSession(ctx, client)
	if err == nil || ctx.Err() != nil {
		return client, session, err
	}
	c.drop(client)
	client, err = c.conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	session, err = c.openSession(ctx, client)
	return client, session, err
}

func (c *sshClient) openSession(ctx context.Context, client *ssh.Client) (*ssh.Session, error) {
	type opened struct {
		session *ssh.Session
		err     error
	}
	done := make(chan opened, 1)
	go func() {
		session, err := client.NewSession()
		done <- opened{session: session, err: err}
	}()

	select {
	case <-ctx.Done():
		c.drop(client)
		// closing the client unblocks NewSession
		if o := <-done; o.session != nil {
			_ = o.session.Close()
		}
		return nil, ctx.Err()
	case o := <-done:
		return o.session, o.err
	}
}

// RunCommand runs a command on the remote host and returns its output and
// exit code. If the context is done, it will send a SIGINT signal to the
// remote process and drop the connection so the next call redials.
func (c *sshClient) RunCommand(ctx context.Context, req CommandRequest) (CommandResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return CommandResult{ExitCode: -1}, errors.New("empty command")
	}

	client, session, err := c.newSession(ctx)
	if err != nil {
		return CommandResult{ExitCode: -1}, fmt.Errorf("error creating new session: %w", err)
	}
	defer session.Close()

	stdout := newCaptureBuffer()
	stderr := newCaptureBuffer()
	session.Stdout = multiWriterFiltered(req.Stdout, stdout)
	session.Stderr = multiWriterFiltered(req.Stderr, stderr)
	if req.Stdin != nil {
		session.Stdin = req.Stdin
	}

	resultChan := make(chan error, 1)
	go func() {
		resultChan <- session.Run(req.Command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGINT)
		c.drop(client)
		return CommandResult{ExitCode: -1}, fmt.Errorf("command interrupted: %w", ctx.Err())
	case err := <-resultChan:
		result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitError *ssh.ExitError
			if errors.As(err, &exitError) {
				result.ExitCode = exitError.ExitStatus()
				return result, nil
			}
			result.ExitCode = -1
			return result, err
		}
		return result, nil
	}
}

// transfer runs an scp operation on the cached connection. scp opens its own
// channel, so a stalled host is handled like in openSession.
func (c *sshClient) transfer(ctx context.Context, fn func(scp.Client) error) error {
	conn, err := c.conn(ctx)
	if err != nil {
		return errors.New("error connecting: " + err.Error())
	}
	client, err := scp.NewClientBySSH(conn)
	if err != nil {
		return errors.New("error creating scp client: " + err.Error())
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(client)
	}()

	select {
	case <-ctx.Done():
		c.drop(conn)
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Download copies a file from the remote host to the local host.
func (c *sshClient) Download(ctx context.Context, remotePath string, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return errors.New("error creating local file: " + err.Error())
	}
	defer file.Close()

	err = c.transfer(ctx, func(client scp.Client) error {
		return client.CopyFromRemote(ctx, file, remotePath)
	})
	if err != nil {
		return fmt.Errorf("error copying file: %w", err)
	}
	return nil
}

// Upload copies a local file to the remote host
func (c *sshClient) Upload(ctx context.Context, localPath, remotePath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return errors.New("error opening local file: " + err.Error())
	}
	defer file.Close()

	// Mode 0755 for scripts
	err = c.transfer(ctx, func(client scp.Client) error {
		return client.CopyFile(ctx, file, remotePath, "0755")
	})
	if err != nil {
		return fmt.Errorf("error uploading file: %w", err)
	}
	return nil
}
