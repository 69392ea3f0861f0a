//go:build integration

package execution

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

const commandTimeout = 10 * time.Second

// integrationSession reads the target from REMOTEJOB_TEST_HOST,
// REMOTEJOB_TEST_PORT, REMOTEJOB_TEST_USER and REMOTEJOB_TEST_KEY.
func integrationSession(t *testing.T) Session {
	t.Helper()
	host := os.Getenv("REMOTEJOB_TEST_HOST")
	if host == "" {
		t.Skip("REMOTEJOB_TEST_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("REMOTEJOB_TEST_PORT"))
	return NewSession(host, port, os.Getenv("REMOTEJOB_TEST_USER"), os.Getenv("REMOTEJOB_TEST_KEY"))
}

func TestSSHClientRunCommand(t *testing.T) {
	session := integrationSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	client, err := NewSSHClient(ctx, session)
	if err != nil {
		t.Fatalf("failed to create SSH client: %v", err)
	}
	defer client.Close()

	res, err := client.RunCommand(ctx, CommandRequest{Command: "echo 'hello world'; exit 4"})
	if err != nil {
		t.Fatalf("failed to run command: %v", err)
	}
	if res.ExitCode != 4 {
		t.Errorf("expected exit code 4, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello world") {
		t.Errorf("expected output to contain %q, got %q", "hello world", res.Stdout)
	}
}

func TestSSHClientConnectionWithInvalidKey(t *testing.T) {
	session := integrationSession(t)
	session.KeyFile = "./testdata/ssh/nonexistent_key"

	_, err := NewSSHClient(context.Background(), session)
	if err == nil {
		t.Fatal("expected error for invalid key file, got nil")
	}
	if !strings.Contains(err.Error(), "error creating ssh client") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSSHClientUploadDownload(t *testing.T) {
	session := integrationSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	client, err := NewSSHClient(ctx, session)
	if err != nil {
		t.Fatalf("failed to create SSH client: %v", err)
	}
	defer client.Close()

	dir := t.TempDir()
	local := filepath.Join(dir, "up.sh")
	if err := os.WriteFile(local, []byte("#!/bin/sh\necho uploaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	remote := "/tmp/remotejob-integration-" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".sh"
	if err := client.Upload(ctx, local, remote); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer client.RunCommand(ctx, CommandRequest{Command: "rm -f " + remote})

	res, err := client.RunCommand(ctx, CommandRequest{Command: remote})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("running uploaded script failed: %v (exit %d)", err, res.ExitCode)
	}
	if got := res.StdoutLines(); len(got) != 1 || got[0] != "uploaded" {
		t.Fatalf("unexpected output %q", got)
	}

	back := filepath.Join(dir, "back.sh")
	if err := client.Download(ctx, remote, back); err != nil {
		t.Fatalf("download failed: %v", err)
	}
}
