package execution

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// stalledServer completes the ssh handshake and then never answers channel
// opens, like a host whose sshd stopped responding mid-session.
type stalledServer struct {
	listener net.Listener
	config   *ssh.ServerConfig

	mu    sync.Mutex
	conns []*ssh.ServerConn
	wg    sync.WaitGroup
}

func newStalledServer(t *testing.T) *stalledServer {
	t.Helper()
	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &stalledServer{listener: listener, config: config}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *stalledServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
			if err != nil {
				conn.Close()
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, sconn)
			s.mu.Unlock()
			go ssh.DiscardRequests(reqs)
			// hold every channel open request without replying
			var pending []ssh.NewChannel
			for ch := range chans {
				pending = append(pending, ch)
			}
			_ = pending
		}()
	}
}

func (s *stalledServer) close() {
	_ = s.listener.Close()
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *stalledServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func writeClientKey(t *testing.T) string {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(key, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestSSHRunCommandHonorsDeadlineOnStalledHost(t *testing.T) {
	server := newStalledServer(t)
	session := Session{
		Host:    "127.0.0.1",
		Port:    server.port(),
		User:    "tester",
		KeyFile: writeClientKey(t),
	}

	client, err := NewSSHClient(context.Background(), session)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := client.RunCommand(ctx, CommandRequest{Command: "true"})
	elapsed := time.Since(start)

	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, -1, res.ExitCode)
	require.Less(t, elapsed, 3*time.Second, "RunCommand must return once the context ends")

	c := client.(*sshClient)
	c.mu.Lock()
	cached := c.client
	c.mu.Unlock()
	require.Nil(t, cached, "a timed out connection must be dropped so the next call redials")

	// the next call redials and is bounded the same way
	ctx2, cancel2 := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel2()
	_, err = client.RunCommand(ctx2, CommandRequest{Command: "true"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSSHUploadHonorsDeadlineOnStalledHost(t *testing.T) {
	server := newStalledServer(t)
	client, err := NewSSHClient(context.Background(), Session{
		Host:    "127.0.0.1",
		Port:    server.port(),
		User:    "tester",
		KeyFile: writeClientKey(t),
	})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	local := filepath.Join(t.TempDir(), "job.sh")
	require.NoError(t, os.WriteFile(local, []byte("#!/bin/sh\n"), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = client.Upload(ctx, local, "/tmp/job.sh")
	require.Error(t, err)
	require.Less(t, time.Since(start), 3*time.Second)
}
