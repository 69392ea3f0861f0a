package job

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeQuoting(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "full", want: `"full"`},
		{in: "--mode", want: `"--mode"`},
		{in: "", want: `""`},
		{in: `"already quoted"`, want: `"already quoted"`},
		{in: `""`, want: `""`},
		{in: `"`, want: `"\""`},
		{in: `"half`, want: `"\"half"`},
		{in: `half"`, want: `"half\""`},
		{in: "$HOME", want: `"\$HOME"`},
		{in: "a`id`b", want: "\"a\\`id\\`b\""},
		{in: `back\slash`, want: `"back\\slash"`},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeQuoting(tt.in), "NormalizeQuoting(%q)", tt.in)
	}
}

func TestNormalizeQuotingIdempotent(t *testing.T) {
	inputs := []string{"", "x", `"x"`, `"`, `"a`, `b"`, "with space", "$(rm -rf /)", `"$VAR"`, "'single'"}
	for _, in := range inputs {
		once := NormalizeQuoting(in)
		require.Equal(t, once, NormalizeQuoting(once), "input %q", in)
	}
}

func TestNewArtifactUnique(t *testing.T) {
	a := NewArtifact("/tmp", "")
	b := NewArtifact("/tmp", "")
	require.NotEqual(t, a.ID, b.ID)
	require.NotEqual(t, a.LockPath, b.LockPath)
	require.True(t, strings.HasPrefix(a.ID, namePrefix))
	require.Equal(t, "/tmp/"+a.ID+".sh", a.ScriptPath)
	require.Equal(t, "/tmp/"+a.ID+".lock", a.LockPath)
	require.Equal(t, "/tmp/"+a.ID+".log", a.LogPath)
}

func TestArtifactLogOverride(t *testing.T) {
	a := ArtifactFor("remotejob-1", "/var/tmp", "/var/log/job.log")
	require.Equal(t, "/var/tmp/remotejob-1.sh", a.ScriptPath)
	require.Equal(t, "/var/log/job.log", a.LogPath)
}

func TestComposeLayout(t *testing.T) {
	art := ArtifactFor("remotejob-1", "/tmp", "")
	content, err := Compose(Spec{Script: "/opt/job.sh", Args: []string{"--mode", "full"}}, art)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	require.Equal(t, []string{
		"#!/bin/sh",
		"'touch' '/tmp/remotejob-1.lock'",
		`'/opt/job.sh' "--mode" "full"`,
		"if [ $? -eq 0 ]; then 'rm' -f '/tmp/remotejob-1.lock'; fi",
	}, lines)
}

func TestComposeRejectsEmptyScript(t *testing.T) {
	_, err := Compose(Spec{Script: "  "}, ArtifactFor("x", "/tmp", ""))
	require.Error(t, err)
}

// The wrapper must leave the lock behind exactly when the target fails.
func TestComposedScriptLockContract(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tests := []struct {
		name     string
		exitCode string
		lockLeft bool
	}{
		{name: "success removes lock", exitCode: "0", lockLeft: false},
		{name: "failure keeps lock", exitCode: "3", lockLeft: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, "target.sh")
			argsOut := filepath.Join(dir, "args")
			body := "#!/bin/sh\nprintf '%s\\n' \"$@\" > '" + argsOut + "'\nexit " + tt.exitCode + "\n"
			require.NoError(t, os.WriteFile(target, []byte(body), 0755))

			art := ArtifactFor("remotejob-test", dir, "")
			content, err := Compose(Spec{Script: target, Args: []string{"a b", "$HOME", `"pre quoted"`}}, art)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(art.ScriptPath, content, 0755))

			_ = exec.Command("sh", art.ScriptPath).Run()

			_, statErr := os.Stat(art.LockPath)
			require.Equal(t, tt.lockLeft, statErr == nil, "lock present")

			got, err := os.ReadFile(argsOut)
			require.NoError(t, err)
			require.Equal(t, "a b\n$HOME\npre quoted\n", string(got))
		})
	}
}
